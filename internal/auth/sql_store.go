package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"OpenUTR/internal/storage/mysql"
)

// SQLStore 把用户、绑定账户与权限保存在 MySQL 的 auth_users 表中。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 连接 MySQL 并执行迁移。
func NewSQLStore(ctx context.Context, cfg mysql.Config) (*SQLStore, error) {
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化用户存储失败: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStoreWithDB 基于已有连接池构造存储，不执行迁移。
func NewSQLStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close 释放连接池。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	const query = `SELECT id, username, password_hash, disabled FROM auth_users WHERE username = ?`
	var user User
	if err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(username)).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Disabled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

func (s *SQLStore) LoadSubject(ctx context.Context, userID int64) (*Subject, error) {
	const query = `SELECT id, username, account, permissions, disabled FROM auth_users WHERE id = ?`
	var (
		subject Subject
		perms   sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&subject.ID, &subject.Username, &subject.Account, &perms, &subject.Disabled,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询用户信息失败: %w", err)
	}
	if perms.Valid && perms.String != "" {
		subject.Permissions = dedupePermissions(strings.Split(perms.String, ","))
	}
	return &subject, nil
}

// ApplySeed 按用户名插入或覆盖用户，权限以逗号分隔保存。
func (s *SQLStore) ApplySeed(ctx context.Context, seed Seed) error {
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return errors.New("seed username cannot be empty")
	}
	hashed, err := HashPassword(seed.Password)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO auth_users (username, password_hash, account, permissions, disabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), account = VALUES(account),
permissions = VALUES(permissions), disabled = VALUES(disabled), updated_at = VALUES(updated_at)`
	now := time.Now().Unix()
	perms := strings.Join(dedupePermissions(seed.Permissions), ",")
	if _, err := s.db.ExecContext(ctx, upsert, username, hashed, strings.TrimSpace(seed.Account), perms, seed.Disabled, now, now); err != nil {
		return fmt.Errorf("保存用户失败: %w", err)
	}
	return nil
}

var (
	_ Store      = (*SQLStore)(nil)
	_ SeedWriter = (*SQLStore)(nil)
)
