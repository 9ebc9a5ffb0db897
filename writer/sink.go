package writer

import "hyperflow/models"

// FillSink persists executed fills for an account. Persistence is
// best-effort: the dispatcher logs failures and keeps streaming.
type FillSink interface {
	Persist(fills []models.UserFill, account string) error
}
