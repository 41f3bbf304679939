package model

import "time"

// ModerationStatus はモデレーション対象エンティティの公開状態を表す。
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "PENDING"
	StatusApproved ModerationStatus = "APPROVED"
	StatusRejected ModerationStatus = "REJECTED"
)

// Valid は定義済みのステータスかどうかを返す。
func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Owned は作成者を持つエンティティを表す。所有者チェックに使用する。
type Owned interface {
	OwnerID() string
}

// Moderated はモデレーションワークフローの対象となるエンティティを表す。
// Author、Genre、Bookが実装する。
type Moderated interface {
	Owned
	ModerationStatus() ModerationStatus
	SetModerationStatus(s ModerationStatus)
	State() *Moderation
}

// Moderation はモデレーション対象エンティティ共通のフィールド。
type Moderation struct {
	Status    ModerationStatus
	CreatedBy string
}

// OwnerID は作成者IDを返す。
func (m *Moderation) OwnerID() string { return m.CreatedBy }

// ModerationStatus は現在のステータスを返す。
func (m *Moderation) ModerationStatus() ModerationStatus { return m.Status }

// SetModerationStatus はステータスを設定する。
func (m *Moderation) SetModerationStatus(s ModerationStatus) { m.Status = s }

// State は共通フィールドそのものを返す。遷移処理に渡すために使う。
func (m *Moderation) State() *Moderation { return m }

// Author は著者を表す。
type Author struct {
	Moderation
	ID         string
	FirstName  string
	LastName   string
	Patronymic string
	Birthday   *time.Time
	Death      *time.Time
	Country    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName は姓名を連結した表示名を返す。
func (a *Author) FullName() string {
	name := a.FirstName + " " + a.LastName
	if a.Patronymic != "" {
		name += " " + a.Patronymic
	}
	return name
}

// Genre はジャンルを表す。
type Genre struct {
	Moderation
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookType は書籍の種別。
type BookType string

const (
	BookTypeFiction    BookType = "FICTION"
	BookTypeNonFiction BookType = "NON_FICTION"
)

// Book は書籍を表す。
type Book struct {
	Moderation
	ID        string
	Title     string
	AuthorID  string
	GenreID   string
	Symbols   int
	Type      BookType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookLog は読書記録を表す。
type BookLog struct {
	ID        string
	BookID    string
	CreatedBy string
	StartDate *time.Time
	EndDate   *time.Time
	Score     int
	Notes     BookLogNotes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookLogNotes は読書記録の自由記述欄。
type BookLogNotes struct {
	Topic              string `json:"topic"`
	ThreeSentences     string `json:"three_sentences"`
	NewKnowledge       string `json:"new_knowledge"`
	TransformedMe      string `json:"transformed_me"`
	Impressions        string `json:"impressions"`
	Ideas              string `json:"ideas"`
	Heroes             string `json:"heroes"`
	Begin              string `json:"begin"`
	KeyEvents          string `json:"key_events"`
	MostImportantEvent string `json:"most_important_event"`
	Result             string `json:"result"`
}

// OwnerID は作成者IDを返す。
func (l *BookLog) OwnerID() string { return l.CreatedBy }

// Quote は書籍からの引用を表す。
type Quote struct {
	ID         string
	BookID     string
	BookLogID  string
	Note       string
	IsPrivate  bool
	CreatedBy  string
	CreatedAt  time.Time
	LikeCount  int
	ShareCount int
}

// OwnerID は作成者IDを返す。
func (q *Quote) OwnerID() string { return q.CreatedBy }

// QuoteFilter は引用一覧の絞り込み条件。
// ViewerIDは非公開引用の可視性判定に使う。Elevatedがtrueなら全件を対象にする。
type QuoteFilter struct {
	AuthorID string
	GenreID  string
	DateFrom *time.Time
	DateTo   *time.Time
	ViewerID string
	Elevated bool
}

// Like は引用への「いいね」を表す。ユーザーと引用の組で一意。
type Like struct {
	ID      string
	UserID  string
	QuoteID string
	Moment  time.Time
}

// OwnerID はいいねしたユーザーIDを返す。
func (l *Like) OwnerID() string { return l.UserID }

// Share は引用の共有を表す。
type Share struct {
	ID          string
	UserID      string
	QuoteID     string
	Destination string
	Moment      time.Time
}

// OwnerID は共有したユーザーIDを返す。
func (s *Share) OwnerID() string { return s.UserID }

// ModeratedFilter はモデレーション対象一覧の可視性条件。
// Elevatedでない場合はAPPROVEDと自分の作成分のみを返す。
type ModeratedFilter struct {
	ViewerID string
	Elevated bool
	Status   ModerationStatus
}
