package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			user_email TEXT,
			timeframe  TEXT,
			is_valid   INTEGER,
			reason     TEXT,
			degraded   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_ts ON verifications(timestamp)`,

		`CREATE TABLE IF NOT EXISTS analyses (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			user_email       TEXT,
			timeframes       TEXT,
			verdict          TEXT,
			confidence       REAL,
			trading_decision TEXT,
			entry_price      REAL,
			stop_loss        REAL,
			take_profit      REAL,
			result_json      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_ts ON analyses(timestamp)`,

		`CREATE TABLE IF NOT EXISTS chat_turns (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			user_email  TEXT,
			message_id  TEXT,
			role        TEXT,
			content     TEXT,
			image_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_ts ON chat_turns(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordVerification(evt *VerificationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO verifications
		(timestamp, user_email, timeframe, is_valid, reason, degraded)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.User, string(evt.Timeframe),
		boolInt(evt.IsValid), evt.Reason, boolInt(evt.Degraded),
	)
	return err
}

func (r *SQLiteRecorder) RecordAnalysis(evt *AnalysisEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.Marshal(evt.Result)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	tfs := make([]string, 0, len(evt.Timeframes))
	for _, tf := range evt.Timeframes {
		tfs = append(tfs, string(tf))
	}
	var entry sql.NullFloat64
	if evt.Result.EntryPrice != nil {
		entry = sql.NullFloat64{Float64: *evt.Result.EntryPrice, Valid: true}
	}

	res := evt.Result
	_, err = r.db.Exec(`INSERT INTO analyses
		(timestamp, user_email, timeframes, verdict, confidence, trading_decision,
		 entry_price, stop_loss, take_profit, result_json)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.User, strings.Join(tfs, ","),
		string(res.Verdict), res.Confidence, string(res.TradingDecision),
		entry, res.StopLoss, res.TakeProfit, string(raw),
	)
	return err
}

func (r *SQLiteRecorder) RecordChatTurn(evt *ChatTurnEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO chat_turns
		(timestamp, user_email, message_id, role, content, image_count)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.User, evt.Message.ID, string(evt.Message.Role),
		evt.Message.Content, len(evt.Message.ImagePreviewURLs),
	)
	return err
}

// CountAnalyses returns how many analyses were recorded for user.
func (r *SQLiteRecorder) CountAnalyses(user string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM analyses WHERE user_email = ?`, user).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
