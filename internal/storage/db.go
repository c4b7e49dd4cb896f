package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotRegistered is returned when a chat has no settings row.
var ErrNotRegistered = errors.New("chat is not registered")

type Database struct {
	db   *gorm.DB
	path string
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Transaction{}, &Settings{}, &Analytics{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db, path: dbPath}, nil
}

// --- tokens and registration ---

func (d *Database) SaveToken(chatID int64, token string) error {
	res := d.db.Model(&Settings{}).Where("chat_id = ?", chatID).Update("token", token)
	if res.Error != nil {
		return fmt.Errorf("failed to save token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s := Settings{
			ChatID:           chatID,
			Token:            token,
			PollIntervalSecs: 3600,
			ShowDateTime:     true,
			Tagging:          true,
			Timezone:         "UTC",
		}
		if err := d.db.Create(&s).Error; err != nil {
			return fmt.Errorf("failed to create settings: %w", err)
		}
	}
	return nil
}

func (d *Database) Token(chatID int64) (string, error) {
	s, err := d.CurrentSettings(chatID)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (d *Database) RegisteredChats() ([]int64, error) {
	var ids []int64
	if err := d.db.Model(&Settings{}).Pluck("chat_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return ids, nil
}

// MarkRevoked takes the chat out of the polling rotation permanently.
func (d *Database) MarkRevoked(chatID int64) error {
	return d.setToken(chatID, TokenRevoked)
}

// MarkBlocked records that the user blocked the bot.
func (d *Database) MarkBlocked(chatID int64) error {
	return d.setToken(chatID, TokenBlocked)
}

func (d *Database) setToken(chatID int64, token string) error {
	err := d.db.Model(&Settings{}).Where("chat_id = ?", chatID).Update("token", token).Error
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return nil
}

// Logout wipes all data for a chat.
func (d *Database) Logout(chatID int64) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&Transaction{}).Error; err != nil {
			return err
		}
		return tx.Where("chat_id = ?", chatID).Delete(&Settings{}).Error
	})
}

// --- sent transactions ---

func (d *Database) WasSent(chatID, txID int64) (bool, error) {
	var count int64
	err := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND tx_id = ?", chatID, txID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query sent transactions: %w", err)
	}
	return count > 0, nil
}

func (d *Database) MarkSent(t *Transaction) error {
	if err := d.db.Create(t).Error; err != nil {
		return fmt.Errorf("failed to record sent transaction: %w", err)
	}
	return nil
}

func (d *Database) TxForMessage(chatID int64, messageID int) (int64, error) {
	var t Transaction
	err := d.db.Where("chat_id = ? AND message_id = ?", chatID, messageID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("no transaction for message %d in chat %d", messageID, chatID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up message %d: %w", messageID, err)
	}
	return t.TxID, nil
}

func (d *Database) MessageForTx(chatID, txID int64) (int, error) {
	var t Transaction
	err := d.db.Where("chat_id = ? AND tx_id = ?", chatID, txID).
		Order("created_at DESC").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("no message for transaction %d in chat %d", txID, chatID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up transaction %d: %w", txID, err)
	}
	return t.MessageID, nil
}

// SentPending returns the rows still marked pending for a chat.
func (d *Database) SentPending(chatID int64) ([]Transaction, error) {
	var rows []Transaction
	err := d.db.Where("chat_id = ? AND pending = ?", chatID, true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return rows, nil
}

// RelinkPlaidID rewrites a row's transaction ids in place after a pending
// transaction posted under a new id, and flips its pending flag since the
// transaction has now been observed as posted. Returns false when no row
// matched.
func (d *Database) RelinkPlaidID(chatID int64, oldPlaidID string, newTxID int64, newPlaidID *string) (bool, error) {
	res := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND plaid_id = ?", chatID, oldPlaidID).
		Updates(map[string]any{"tx_id": newTxID, "plaid_id": newPlaidID, "pending": false})
	if res.Error != nil {
		return false, fmt.Errorf("failed to relink plaid id %s: %w", oldPlaidID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkPosted flips the pending flag once a transaction is observed as posted.
func (d *Database) MarkPosted(chatID, txID int64) error {
	err := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND tx_id = ?", chatID, txID).
		Update("pending", false).Error
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d posted: %w", txID, err)
	}
	return nil
}

func (d *Database) MarkReviewedByTx(chatID, txID int64) error {
	now := time.Now()
	err := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND tx_id = ?", chatID, txID).
		Update("reviewed_at", &now).Error
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d reviewed: %w", txID, err)
	}
	return nil
}

func (d *Database) MarkReviewedByMessage(chatID int64, messageID int) error {
	now := time.Now()
	err := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		Update("reviewed_at", &now).Error
	if err != nil {
		return fmt.Errorf("failed to mark message %d reviewed: %w", messageID, err)
	}
	return nil
}

func (d *Database) MarkUnreviewedByMessage(chatID int64, messageID int) error {
	err := d.db.Model(&Transaction{}).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		Update("reviewed_at", nil).Error
	if err != nil {
		return fmt.Errorf("failed to mark message %d unreviewed: %w", messageID, err)
	}
	return nil
}

// --- settings ---

func (d *Database) CurrentSettings(chatID int64) (*Settings, error) {
	var s Settings
	err := d.db.Where("chat_id = ?", chatID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &s, nil
}

func (d *Database) UpdateLastPollAt(chatID int64, t time.Time) error {
	return d.updateSetting(chatID, "last_poll_at", &t)
}

func (d *Database) UpdatePollInterval(chatID int64, secs int) error {
	return d.updateSetting(chatID, "poll_interval_secs", secs)
}

func (d *Database) UpdateAutoMarkReviewed(chatID int64, v bool) error {
	return d.updateSetting(chatID, "auto_mark_reviewed", v)
}

func (d *Database) UpdatePollPending(chatID int64, v bool) error {
	return d.updateSetting(chatID, "poll_pending", v)
}

func (d *Database) UpdateShowDateTime(chatID int64, v bool) error {
	return d.updateSetting(chatID, "show_date_time", v)
}

func (d *Database) UpdateTagging(chatID int64, v bool) error {
	return d.updateSetting(chatID, "tagging", v)
}

func (d *Database) UpdateTimezone(chatID int64, tz string) error {
	return d.updateSetting(chatID, "timezone", tz)
}

func (d *Database) updateSetting(chatID int64, column string, value any) error {
	err := d.db.Model(&Settings{}).Where("chat_id = ?", chatID).Update(column, value).Error
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

// --- analytics ---

func (d *Database) IncMetric(key string, increment float64) error {
	day := midnight(time.Now())
	var m Analytics
	err := d.db.Where("key = ? AND date = ?", key, day).First(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		m = Analytics{Key: key, Date: day, Value: increment}
		if err := d.db.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to create metric %s: %w", key, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read metric %s: %w", key, err)
	}
	err = d.db.Model(&m).Update("value", m.Value+increment).Error
	if err != nil {
		return fmt.Errorf("failed to increment metric %s: %w", key, err)
	}
	return nil
}

func (d *Database) Metric(key string, start, end time.Time) (float64, error) {
	var total float64
	err := d.db.Model(&Analytics{}).
		Where("key = ? AND date >= ? AND date <= ?", key, midnight(start), end).
		Select("COALESCE(SUM(value), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum metric %s: %w", key, err)
	}
	return total, nil
}

// --- status counters for the web server ---

func (d *Database) UserCount() (int64, error) {
	var count int64
	err := d.db.Model(&Settings{}).
		Where("token NOT IN ?", []string{TokenRevoked, TokenBlocked}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (d *Database) SentMessageCount() (int64, error) {
	var count int64
	if err := d.db.Model(&Transaction{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sent messages: %w", err)
	}
	return count, nil
}

func (d *Database) Size() int64 {
	info, err := os.Stat(d.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
