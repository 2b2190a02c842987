package core

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gender of a celebrity as stored and as requested from the model.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is one of the supported values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Birth years outside this range are rejected for every candidate.
const (
	MinBirthYear = 1900
	MaxBirthYear = 2100
)

// Celebrity is the root entity of the game. Name matching is case-insensitive
// through NameKey, which is maintained by the BeforeSave hook.
type Celebrity struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;not null;index:idx_celebrities_name_key" json:"-"`
	BirthYear int       `gorm:"not null" json:"birth_year"`
	Gender    Gender    `gorm:"size:16;not null" json:"gender"`
	Tagline   string    `gorm:"size:512" json:"tagline,omitempty"`   // Empty means unset
	PhotoURL  string    `gorm:"size:1024" json:"photo_url,omitempty"` // Remote URL or public path of a generated portrait
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Celebrity) TableName() string {
	return "celebrities"
}

// BeforeSave keeps the normalized lookup key in sync with Name.
func (c *Celebrity) BeforeSave(tx *gorm.DB) error {
	c.NameKey = NormalizeName(c.Name)
	return nil
}

// NormalizeName folds a display name into its lookup key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CelebrityRelationship links two celebrities. Celebrity1 is the answer side
// and Celebrity2 the partner side; PairLow/PairHigh hold the same ids sorted so
// the unique index covers the unordered pair.
type CelebrityRelationship struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Celebrity1ID uint      `gorm:"column:celebrity_1_id;not null;index" json:"celebrity_1_id"`
	Celebrity2ID uint      `gorm:"column:celebrity_2_id;not null;index" json:"celebrity_2_id"`
	PairLow      uint      `gorm:"not null;uniqueIndex:idx_relationship_pair" json:"-"`
	PairHigh     uint      `gorm:"not null;uniqueIndex:idx_relationship_pair" json:"-"`
	Citation     string    `gorm:"size:1024" json:"citation,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	Celebrity1 *Celebrity `gorm:"foreignKey:Celebrity1ID;constraint:OnDelete:CASCADE" json:"celebrity_1,omitempty"`
	Celebrity2 *Celebrity `gorm:"foreignKey:Celebrity2ID;constraint:OnDelete:CASCADE" json:"celebrity_2,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (CelebrityRelationship) TableName() string {
	return "celebrity_relationships"
}

// BeforeSave derives the ordered pair columns.
func (r *CelebrityRelationship) BeforeSave(tx *gorm.DB) error {
	r.PairLow, r.PairHigh = OrderedPair(r.Celebrity1ID, r.Celebrity2ID)
	return nil
}

// OrderedPair returns a and b sorted ascending.
func OrderedPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// GameTypeRomance is the only puzzle type produced by the pipeline.
const GameTypeRomance = "romance"

// GameDateLayout is the storage format of DailyGame.GameDate.
const GameDateLayout = "2006-01-02"

// SubjectCount is the number of clue celebrities in a daily game.
const SubjectCount = 4

// DailyGame is the puzzle for one calendar date.
type DailyGame struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	GameDate   string    `gorm:"size:10;not null;uniqueIndex" json:"game_date"`
	AnswerID   uint      `gorm:"not null;index" json:"answer_id"`
	Subject1ID uint      `gorm:"column:subject_1_id;not null" json:"subject_1_id"`
	Subject2ID uint      `gorm:"column:subject_2_id;not null" json:"subject_2_id"`
	Subject3ID uint      `gorm:"column:subject_3_id;not null" json:"subject_3_id"`
	Subject4ID uint      `gorm:"column:subject_4_id;not null" json:"subject_4_id"`
	Type       string    `gorm:"size:32;not null;default:romance" json:"type"`
	CreatedAt  time.Time `json:"created_at"`

	Answer *Celebrity `gorm:"foreignKey:AnswerID" json:"answer,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (DailyGame) TableName() string {
	return "daily_games"
}

// SubjectIDs returns the four subject ids in display order.
func (g DailyGame) SubjectIDs() []uint {
	return []uint{g.Subject1ID, g.Subject2ID, g.Subject3ID, g.Subject4ID}
}

// SetSubjects assigns the subject columns from ids, which must hold SubjectCount entries.
func (g *DailyGame) SetSubjects(ids []uint) {
	g.Subject1ID, g.Subject2ID, g.Subject3ID, g.Subject4ID = ids[0], ids[1], ids[2], ids[3]
}

// FormatGameDate renders t in the stored date layout.
func FormatGameDate(t time.Time) string {
	return t.Format(GameDateLayout)
}

// Setting is one key of the settings table. Values are arbitrary JSON.
type Setting struct {
	Key       string         `gorm:"primaryKey;size:128" json:"key"`
	Value     datatypes.JSON `gorm:"not null" json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Setting) TableName() string {
	return "settings"
}

// JobLock claims a job key across processes while its job runs.
type JobLock struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	JobID     string    `gorm:"size:64;not null;index" json:"job_id"`
	Owner     string    `gorm:"size:255" json:"owner"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (JobLock) TableName() string {
	return "job_locks"
}
