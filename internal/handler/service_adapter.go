package handler

import (
	"github.com/hitoshi/booklog/internal/journal"
	"github.com/hitoshi/booklog/internal/model"
)

// JournalServiceAdapter は journal.Service を CatalogueServiceInterface と
// JournalServiceInterface に適合させるアダプタ。
type JournalServiceAdapter struct {
	*journal.Service
}

// NewJournalServiceAdapter はJournalServiceAdapterを生成する。
func NewJournalServiceAdapter(svc *journal.Service) *JournalServiceAdapter {
	return &JournalServiceAdapter{Service: svc}
}

// Authors は著者カタログを返す。
func (a *JournalServiceAdapter) Authors() ModeratedCatalogue[*model.Author] {
	return a.Service.Authors()
}

// Genres はジャンルカタログを返す。
func (a *JournalServiceAdapter) Genres() ModeratedCatalogue[*model.Genre] {
	return a.Service.Genres()
}

// Books は書籍カタログを返す。
func (a *JournalServiceAdapter) Books() ModeratedCatalogue[*model.Book] {
	return a.Service.Books()
}

// --- compile-time interface checks ---

var _ CatalogueServiceInterface = (*JournalServiceAdapter)(nil)
var _ JournalServiceInterface = (*JournalServiceAdapter)(nil)
