package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/storage/mysql"
)

const batchColumns = `id, caller, value, outputs, actions, metadata, status, attempts, max_retries,
        last_error, error_code, result, created_at, updated_at`

// MySQLStore 使用 MySQL 记录批次状态。表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并执行迁移。
func NewMySQLStore(ctx context.Context, cfg mysql.Config) (*MySQLStore, error) {
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化批次存储失败")
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreWithDB 基于已有连接池构造存储，不执行迁移。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Create 插入新的批次记录。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	now := time.Now().Unix()
	task.CreatedAt = now
	task.UpdatedAt = now

	outputs, err := json.Marshal(task.Outputs)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码批次输出失败")
	}
	actions, err := json.Marshal(task.Actions)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码批次动作失败")
	}
	metadata, err := marshalNullable(task.Metadata, len(task.Metadata) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码批次 metadata 失败")
	}

	const stmt = `INSERT INTO batches
        (id, caller, value, outputs, actions, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		task.ID,
		task.Caller.Hex(),
		valueString(task.Value),
		string(outputs),
		string(actions),
		metadata,
		string(task.Status),
		task.Attempts,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入批次失败")
	}
	return nil
}

// Get 查询指定批次。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询批次失败")
	}
	return task, nil
}

// Claim 将批次标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const updateStmt = `UPDATE batches SET status = ?, attempts = attempts + 1, updated_at = ?
        WHERE id = ? AND status = ? AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, updateStmt,
		string(StatusRunning),
		time.Now().Unix(),
		id,
		string(StatusPending),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新批次状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return task, nil
	}
	switch task.Status {
	case StatusSucceeded, StatusFailed:
		return task, ErrTaskCompleted
	case StatusRunning:
		return task, ErrTaskConflict
	default:
		if task.Attempts >= task.MaxRetries {
			return task, ErrTaskExhausted
		}
		return task, ErrTaskConflict
	}
}

// MarkSucceeded 将批次标记为成功并写入回执。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码批次回执失败")
	}
	const stmt = `UPDATE batches SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusSucceeded),
		string(encoded),
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记批次成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkFailed 记录失败。非终态失败使批次回到 pending。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE batches SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	res, err := s.db.ExecContext(ctx, stmt,
		string(status),
		lastError,
		string(code),
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记批次失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回符合过滤条件的批次。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT ` + batchColumns + ` FROM batches`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询批次列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析批次记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历批次失败")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的批次聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM batches`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	var stats TaskStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询批次统计失败")
	}
	if stats.Failed == 0 {
		return stats, nil
	}

	codes, err := s.errorCodeBreakdown(ctx, clause, filterArgs)
	if err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询错误码分布失败")
	}
	stats.ErrorCodes = codes
	return stats, nil
}

func (s *MySQLStore) errorCodeBreakdown(ctx context.Context, clause string, filterArgs []any) (map[string]int, error) {
	query := "SELECT error_code, COUNT(*) FROM batches WHERE status = ? AND error_code <> ''"
	if clause != "" {
		query += " AND " + clause
	}
	query += " GROUP BY error_code"
	args := append([]any{string(StatusFailed)}, filterArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make(map[string]int)
	for rows.Next() {
		var (
			code  string
			count int
		)
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		codes[code] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}
	return codes, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		task     Task
		caller   string
		value    string
		outputs  string
		actions  string
		status   string
		metadata sql.NullString
		lastErr  sql.NullString
		result   sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&caller,
		&value,
		&outputs,
		&actions,
		&metadata,
		&status,
		&task.Attempts,
		&task.MaxRetries,
		&lastErr,
		&task.ErrorCode,
		&result,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Caller = common.HexToAddress(caller)
	task.Status = Status(status)
	task.LastError = lastErr.String
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("批次 %s 的 value 无效: %q", task.ID, value)
	}
	task.Value = v
	if err := json.Unmarshal([]byte(outputs), &task.Outputs); err != nil {
		return nil, fmt.Errorf("解析批次输出失败: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &task.Actions); err != nil {
		return nil, fmt.Errorf("解析批次动作失败: %w", err)
	}
	if metadata.Valid && strings.TrimSpace(metadata.String) != "" {
		if err := json.Unmarshal([]byte(metadata.String), &task.Metadata); err != nil {
			return nil, fmt.Errorf("解析批次 metadata 失败: %w", err)
		}
	}
	if result.Valid && strings.TrimSpace(result.String) != "" {
		var r ExecutionResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("解析批次回执失败: %w", err)
		}
		task.Result = &r
	}
	return &task, nil
}

func marshalNullable(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "(result IS NOT NULL AND result <> '')")
		} else {
			conditions = append(conditions, "(result IS NULL OR result = '')")
		}
	}
	if opts.Caller != nil {
		conditions = append(conditions, "caller = ?")
		args = append(args, opts.Caller.Hex())
	}
	if opts.ErrorCode != "" {
		conditions = append(conditions, "error_code = ?")
		args = append(args, opts.ErrorCode)
	}
	if opts.Token != nil {
		// JSON 中的地址以小写十六进制编码
		token := strings.ToLower(opts.Token.Hex())
		conditions = append(conditions, "(JSON_SEARCH(outputs, 'one', ?, NULL, '$[*].token') IS NOT NULL OR JSON_SEARCH(actions, 'one', ?, NULL, '$[*].inputs[*].token') IS NOT NULL)")
		args = append(args, token, token)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR caller LIKE ? OR last_error LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var (
	_ Store   = (*MySQLStore)(nil)
	_ scanner = (*sql.Row)(nil)
)
