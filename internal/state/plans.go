package state

import (
	"context"
	"time"
)

// PlanAudit is one planning outcome, kept so true fallbacks can be told
// apart from confident single-step classifications in telemetry.
type PlanAudit struct {
	ID        int64
	SessionID string
	Request   string
	MultiStep bool
	Fallback  bool
	StepCount int
	CreatedAt time.Time
}

func (db *DB) SavePlanAudit(ctx context.Context, audit PlanAudit) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO plan_audits (session_id, request, multi_step, fallback, step_count, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		audit.SessionID, audit.Request, audit.MultiStep, audit.Fallback, audit.StepCount, time.Now())
	return err
}

func (db *DB) PlanAudits(ctx context.Context, sessionID string) ([]PlanAudit, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, session_id, request, multi_step, fallback, step_count, created_at
		FROM plan_audits
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []PlanAudit
	for rows.Next() {
		var a PlanAudit
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Request, &a.MultiStep, &a.Fallback, &a.StepCount, &a.CreatedAt); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}
