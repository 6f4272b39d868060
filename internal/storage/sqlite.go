package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/furqank73/Web-Scraping/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink 把记录流式写入本地SQLite,同一listing_url再次出现时覆盖
type SQLiteSink struct {
	db    *sql.DB
	runID string

	mu     sync.Mutex
	insert *sql.Stmt
}

// NewSQLiteSink 打开或创建数据库并初始化表结构
func NewSQLiteSink(dbPath, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	s := &SQLiteSink{db: db, runID: runID}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	s.insert, err = db.Prepare(`
		INSERT INTO records (listing_url, run_id, name, phone, website, listing_id, extraction_error, scraped_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_url) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			website = EXCLUDED.website,
			listing_id = EXCLUDED.listing_id,
			extraction_error = EXCLUDED.extraction_error,
			scraped_at = EXCLUDED.scraped_at,
			data = EXCLUDED.data
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("准备插入语句失败: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		record_id INTEGER PRIMARY KEY AUTOINCREMENT,
		listing_url TEXT UNIQUE NOT NULL,
		run_id TEXT NOT NULL,
		name TEXT,
		phone TEXT,
		website TEXT,
		listing_id TEXT,
		extraction_error TEXT,
		scraped_at TEXT,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_listing_id ON records(listing_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Write 实现 Sink
func (s *SQLiteSink) Write(record models.Record) error {
	url := record.String(models.FieldListingURL)
	if url == "" {
		return fmt.Errorf("记录缺少 %s", models.FieldListingURL)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.insert.Exec(
		url,
		s.runID,
		nullable(record.String(models.FieldName)),
		nullable(record.String(models.FieldPhone)),
		nullable(record.String(models.FieldWebsite)),
		nullable(record.String(models.FieldListingID)),
		nullable(record.String(models.FieldExtractionError)),
		nullable(record.String(models.FieldScrapedAt)),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	return nil
}

// Count 某次运行写入的记录数, runID为空时统计全部
func (s *SQLiteSink) Count(runID string) (int, error) {
	var n int
	var err error
	if runID == "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM records WHERE run_id = ?", runID).Scan(&n)
	}
	return n, err
}

// Load 按listing_url读取记录,不存在时返回nil
func (s *SQLiteSink) Load(listingURL string) (*models.Record, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM records WHERE listing_url = ?", listingURL).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r models.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
