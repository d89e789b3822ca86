// Package model defines the data models for the chat economy bot.
package model

import "time"

// User is a chat participant keyed by canonical identity.
type User struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	IsAdmin      bool      `db:"is_admin"`
	IsOwner      bool      `db:"is_owner"`
	LastActiveAt time.Time `db:"last_active"`
	CreatedAt    time.Time `db:"created_at"`
}

// PlayerStats is the ledger row holding a user's economy and RPG state.
// Coins and Bank are never negative.
type PlayerStats struct {
	UserID          string    `db:"user_id"`
	Level           int       `db:"level"`
	XP              int64     `db:"xp"`
	HP              int       `db:"hp"`
	MP              int       `db:"mp"`
	Coins           int64     `db:"coins"`
	Bank            int64     `db:"bank"`
	BankInterest    int       `db:"bank_interest"`
	Class           string    `db:"class"`
	Strength        int       `db:"strength"`
	Defense         int       `db:"defense"`
	Agility         int       `db:"agility"`
	Magic           int       `db:"magic"`
	BattlesWon      int       `db:"battles_won"`
	BattlesLost     int       `db:"battles_lost"`
	QuestsCompleted int       `db:"quests_completed"`
	ItemsCollected  int       `db:"items_collected"`
	LastActiveAt    time.Time `db:"last_active"`
}

// Default values for a freshly created ledger row.
const (
	DefaultLevel        = 1
	DefaultHP           = 100
	DefaultMP           = 50
	DefaultBankInterest = 15
	DefaultClass        = "warrior"
	DefaultAttribute    = 10
)

// NewPlayerStats returns a ledger row with the documented defaults.
func NewPlayerStats(userID string) *PlayerStats {
	return &PlayerStats{
		UserID:       userID,
		Level:        DefaultLevel,
		HP:           DefaultHP,
		MP:           DefaultMP,
		BankInterest: DefaultBankInterest,
		Class:        DefaultClass,
		Strength:     DefaultAttribute,
		Defense:      DefaultAttribute,
		Agility:      DefaultAttribute,
		Magic:        DefaultAttribute,
		LastActiveAt: time.Now(),
	}
}

// Total returns liquid plus banked coins.
func (s *PlayerStats) Total() int64 {
	return s.Coins + s.Bank
}

// Clone returns a copy of the row.
func (s *PlayerStats) Clone() *PlayerStats {
	c := *s
	return &c
}

// DefaultPrefix is the command prefix of a group without configuration.
const DefaultPrefix = "!"

// GroupConfig holds per-conversation settings. An empty Prefix means the
// deployment default applies. Autosticker is stored for the sticker feature
// and is off until a group admin enables it.
type GroupConfig struct {
	GroupID     string `db:"group_id"`
	Prefix      string `db:"prefix"`
	Autosticker bool   `db:"autosticker"`
}

// DefaultGroupConfig returns the configuration implied by a missing row.
func DefaultGroupConfig(groupID string) *GroupConfig {
	return &GroupConfig{GroupID: groupID}
}

// GroupConfigUpdate lists the fields to write on upsert. Nil fields are left untouched.
type GroupConfigUpdate struct {
	Prefix      *string
	Autosticker *bool
}

// Transaction is a ledger journal entry.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction types for categorizing ledger mutations.
const (
	TxTypeAdjust      = "adjust"       // AddCoins
	TxTypeSet         = "set"          // SetCoins
	TxTypeDeduct      = "deduct"       // Deduct
	TxTypeTransferOut = "transfer_out" // Transfer debit
	TxTypeTransferIn  = "transfer_in"  // Transfer credit
	TxTypeDeposit     = "deposit"      // coins -> bank
	TxTypeWithdraw    = "withdraw"     // bank -> coins
)

// RankEntry is one line of the wealth leaderboard.
type RankEntry struct {
	UserID string `db:"user_id"`
	Name   string `db:"name"`
	Total  int64  `db:"total"`
}
