package baseline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Hara602/rootkitSentry/internal/model"
	_ "modernc.org/sqlite"
)

// Store 记录每个被扫描目录中见过的文件名，作为下一次扫描的查找候选。
// 只保存期望的目录内容，不保存异常记录。
type Store struct {
	db *sql.DB
}

// Open 初始化数据库表结构
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 联合主键 (dir, name) 防止重复
	schema := `
	CREATE TABLE IF NOT EXISTS dir_entries (
		dir TEXT,
		name TEXT,
		inode INTEGER,
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dir, name)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Names 目录 dir 的基线文件名
func (s *Store) Names(ctx context.Context, dir string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM dir_entries WHERE dir = ? ORDER BY name", dir)
	if err != nil {
		return nil, fmt.Errorf("query baseline for %s: %w", dir, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Record 把本次列出的目录项加入基线，已有的保持不变
func (s *Store) Record(ctx context.Context, dir string, entries []model.DirEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO dir_entries(dir, name, inode) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, dir, e.Name, int64(e.Inode)); err != nil {
			return fmt.Errorf("record %s/%s: %w", dir, e.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
