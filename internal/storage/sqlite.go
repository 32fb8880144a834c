package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/storyline-qa/storyline/internal/model"
)

//go:embed migrations/*.sql
var fs embed.FS

// SQLiteRepository persists scenarios and results in SQLite. Filterable
// attributes live in their own columns, the full entity is stored as a JSON
// document so reads return exactly what was written.
type SQLiteRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewSQLite opens (and migrates) the database. An empty filename opens an
// exclusive in-memory database, which is what the tests use.
func NewSQLite(dbFilename string, log *slog.Logger) (*SQLiteRepository, error) {
	db, err := sqlx.Connect("sqlite", connectionString(dbFilename))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteRepository{
		db:  db,
		log: log,
	}

	if err = s.migrateDB(db); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func connectionString(filename string) string {
	var cs string
	var options = []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=synchronous(normal)"}

	if filename != "" {
		cs = filename
	} else {
		cs = "file:" + randomAlphanumeric(16)
		options = append(options, "mode=memory", "cache=shared")
	}

	for i, o := range options {
		if i == 0 {
			cs += "?"
		} else {
			cs += "&"
		}
		cs += o
	}

	return cs
}

const alphaNumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphaNumericChars[rand.Intn(len(alphaNumericChars))]
	}
	return string(b)
}

func (s *SQLiteRepository) migrateDB(db *sqlx.DB) error {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("load db migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("load migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate with instance: %w", err)
	}

	err = m.Up()

	if err == migrate.ErrNoChange {
		s.log.Info("no migrations to apply, db is at the latest state")
	} else if err != nil {
		return fmt.Errorf("applying db migrations: %w", err)
	}

	return nil
}

// sqliteTimeFormat pads fractional seconds to nine digits. RFC3339Nano drops
// trailing zeros, which breaks lexicographic comparison of the stored strings
// ("..05Z" sorts after "..05.5Z").
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func timeFormat(t time.Time) string {
	// UTC keeps the strings comparable across time zones
	return t.UTC().Format(sqliteTimeFormat)
}

func (s *SQLiteRepository) SaveScenario(ctx context.Context, sc model.TestScenario) error {
	sc.UpdatedAt = time.Now()

	document, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshaling scenario: %w", err)
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO Scenario
	(id, projectId, title, description, type, status, priority, environment, createdBy, createdAt, updatedAt, document) VALUES
	(:id, :projectId, :title, :description, :type, :status, :priority, :environment, :createdBy, :createdAt, :updatedAt, :document)
	ON CONFLICT (id) DO UPDATE SET
	projectId=:projectId, title=:title, description=:description, type=:type, status=:status,
	priority=:priority, environment=:environment, createdBy=:createdBy, updatedAt=:updatedAt, document=:document`,
		scenarioArgs(sc, document))

	return err
}

func scenarioArgs(sc model.TestScenario, document []byte) map[string]any {
	return map[string]any{
		"id":          sc.ID,
		"projectId":   sc.ProjectID,
		"title":       sc.Title,
		"description": sc.Description,
		"type":        sc.Type,
		"status":      sc.Status,
		"priority":    sc.Priority,
		"environment": sc.Environment,
		"createdBy":   sc.CreatedBy,
		"createdAt":   timeFormat(sc.CreatedAt),
		"updatedAt":   timeFormat(sc.UpdatedAt),
		"document":    string(document),
	}
}

func (s *SQLiteRepository) GetScenario(ctx context.Context, id string) (model.TestScenario, error) {
	var document string

	err := s.db.GetContext(ctx, &document, `SELECT document FROM Scenario WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return model.TestScenario{}, model.NotFoundError{Kind: "scenario", ID: id}
		}
		return model.TestScenario{}, err
	}

	return unmarshalScenario(document)
}

func (s *SQLiteRepository) GetScenariosByProject(ctx context.Context, projectID string) ([]model.TestScenario, error) {
	var documents []string

	err := s.db.SelectContext(ctx, &documents,
		`SELECT document FROM Scenario WHERE projectId = ? ORDER BY createdAt DESC`, projectID)
	if err != nil {
		return nil, err
	}

	return unmarshalScenarios(documents)
}

func (s *SQLiteRepository) UpdateScenario(ctx context.Context, sc model.TestScenario) error {
	sc.UpdatedAt = time.Now()

	document, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshaling scenario: %w", err)
	}

	r, err := s.db.NamedExecContext(ctx, `UPDATE Scenario SET
	projectId=:projectId, title=:title, description=:description, type=:type, status=:status,
	priority=:priority, environment=:environment, createdBy=:createdBy, updatedAt=:updatedAt, document=:document
	WHERE id=:id`,
		scenarioArgs(sc, document))
	if err != nil {
		return err
	}

	if affected, _ := r.RowsAffected(); affected == 0 {
		return model.NotFoundError{Kind: "scenario", ID: sc.ID}
	}

	return nil
}

func (s *SQLiteRepository) DeleteScenario(ctx context.Context, id string) error {
	r, err := s.db.ExecContext(ctx, `DELETE FROM Scenario WHERE id = ?`, id)
	if err != nil {
		return err
	}

	if affected, _ := r.RowsAffected(); affected == 0 {
		return model.NotFoundError{Kind: "scenario", ID: id}
	}

	return nil
}

// SearchScenarios filters on the indexed columns in SQL; tag intersection
// needs the unmarshaled document, so it (and pagination) happens in Go.
func (s *SQLiteRepository) SearchScenarios(ctx context.Context, query model.ScenarioQuery) (model.ScenarioPage, error) {
	query = query.Normalize()

	where := []string{"1=1"}
	args := map[string]any{}

	if query.ProjectID != "" {
		where = append(where, "projectId = :projectId")
		args["projectId"] = query.ProjectID
	}
	if query.CreatedBy != "" {
		where = append(where, "createdBy LIKE :createdBy")
		args["createdBy"] = "%" + query.CreatedBy + "%"
	}
	if !query.CreatedFrom.IsZero() {
		where = append(where, "createdAt >= :createdFrom")
		args["createdFrom"] = timeFormat(query.CreatedFrom)
	}
	if !query.CreatedTo.IsZero() {
		where = append(where, "createdAt <= :createdTo")
		args["createdTo"] = timeFormat(query.CreatedTo)
	}
	if query.Text != "" {
		where = append(where, "(title LIKE :text OR description LIKE :text)")
		args["text"] = "%" + query.Text + "%"
	}

	where = append(where, inClause("type", "type", query.Types, args)...)
	where = append(where, inClause("status", "status", query.Statuses, args)...)
	where = append(where, inClause("priority", "priority", query.Priorities, args)...)

	q := `SELECT document FROM Scenario WHERE ` + strings.Join(where, " AND ")

	rows, err := s.db.NamedQuery(q, args)
	if err != nil {
		return model.ScenarioPage{}, err
	}
	defer rows.Close()

	var matches []model.TestScenario

	for rows.Next() {
		var document string

		if err := rows.Scan(&document); err != nil {
			return model.ScenarioPage{}, fmt.Errorf("scanning scenario: %w", err)
		}

		sc, err := unmarshalScenario(document)
		if err != nil {
			return model.ScenarioPage{}, err
		}

		if !hasAllTags(sc.Tags, query.Tags) {
			continue
		}

		matches = append(matches, sc)
	}

	sortScenarios(matches, query.SortBy, query.Ascending)

	start, end := model.PageBounds(query.Page, query.PageSize, len(matches))

	return model.ScenarioPage{
		Items:    matches[start:end],
		Total:    len(matches),
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func (s *SQLiteRepository) SaveResult(ctx context.Context, res model.TestResult) error {
	document, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO TestResult
	(id, scenarioId, environment, passed, startedAt, completedAt, durationMs, document) VALUES
	(:id, :scenarioId, :environment, :passed, :startedAt, :completedAt, :durationMs, :document)
	ON CONFLICT (id) DO UPDATE SET
	environment=:environment, passed=:passed, startedAt=:startedAt, completedAt=:completedAt,
	durationMs=:durationMs, document=:document`,
		map[string]any{
			"id":          res.ID,
			"scenarioId":  res.ScenarioID,
			"environment": res.Environment,
			"passed":      res.Passed,
			"startedAt":   timeFormat(res.StartedAt),
			"completedAt": timeFormat(res.CompletedAt),
			"durationMs":  res.Duration.Milliseconds(),
			"document":    string(document),
		})

	return err
}

func (s *SQLiteRepository) GetResult(ctx context.Context, id string) (model.TestResult, error) {
	var document string

	err := s.db.GetContext(ctx, &document, `SELECT document FROM TestResult WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return model.TestResult{}, model.NotFoundError{Kind: "result", ID: id}
		}
		return model.TestResult{}, err
	}

	return unmarshalResult(document)
}

func (s *SQLiteRepository) GetResultsByScenario(ctx context.Context, scenarioID string) ([]model.TestResult, error) {
	var documents []string

	err := s.db.SelectContext(ctx, &documents,
		`SELECT document FROM TestResult WHERE scenarioId = ? ORDER BY startedAt DESC`, scenarioID)
	if err != nil {
		return nil, err
	}

	return unmarshalResults(documents)
}

func (s *SQLiteRepository) SearchResults(ctx context.Context, query model.ResultQuery) (model.ResultPage, error) {
	query = query.Normalize()

	where := []string{"1=1"}
	args := map[string]any{}

	if query.ScenarioID != "" {
		where = append(where, "scenarioId = :scenarioId")
		args["scenarioId"] = query.ScenarioID
	}
	if query.Environment != "" {
		where = append(where, "environment = :environment")
		args["environment"] = query.Environment
	}
	if query.Passed != nil {
		where = append(where, "passed = :passed")
		args["passed"] = *query.Passed
	}
	if !query.StartedFrom.IsZero() {
		where = append(where, "startedAt >= :startedFrom")
		args["startedFrom"] = timeFormat(query.StartedFrom)
	}
	if !query.StartedTo.IsZero() {
		where = append(where, "startedAt <= :startedTo")
		args["startedTo"] = timeFormat(query.StartedTo)
	}

	q := `SELECT document FROM TestResult WHERE ` + strings.Join(where, " AND ")

	rows, err := s.db.NamedQuery(q, args)
	if err != nil {
		return model.ResultPage{}, err
	}
	defer rows.Close()

	var matches []model.TestResult

	for rows.Next() {
		var document string

		if err := rows.Scan(&document); err != nil {
			return model.ResultPage{}, fmt.Errorf("scanning result: %w", err)
		}

		res, err := unmarshalResult(document)
		if err != nil {
			return model.ResultPage{}, err
		}

		matches = append(matches, res)
	}

	sortResults(matches, query.SortBy, query.Ascending)

	start, end := model.PageBounds(query.Page, query.PageSize, len(matches))

	return model.ResultPage{
		Items:    matches[start:end],
		Total:    len(matches),
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func (s *SQLiteRepository) DeleteResult(ctx context.Context, id string) error {
	r, err := s.db.ExecContext(ctx, `DELETE FROM TestResult WHERE id = ?`, id)
	if err != nil {
		return err
	}

	if affected, _ := r.RowsAffected(); affected == 0 {
		return model.NotFoundError{Kind: "result", ID: id}
	}

	return nil
}

func (s *SQLiteRepository) GetTestStatistics(ctx context.Context, projectID string, from, to time.Time) (model.TestStatistics, error) {
	scenarios, err := s.GetScenariosByProject(ctx, projectID)
	if err != nil {
		return model.TestStatistics{}, err
	}

	var documents []string

	err = s.db.SelectContext(ctx, &documents,
		`SELECT r.document FROM TestResult r
		JOIN Scenario s ON s.id = r.scenarioId
		WHERE s.projectId = ?`, projectID)
	if err != nil {
		return model.TestStatistics{}, err
	}

	results, err := unmarshalResults(documents)
	if err != nil {
		return model.TestStatistics{}, err
	}

	return model.ComputeStatistics(projectID, from, to, scenarios, results), nil
}

func (s *SQLiteRepository) ArchiveOldResults(ctx context.Context, olderThan time.Time) (int, error) {
	r, err := s.db.ExecContext(ctx, `DELETE FROM TestResult WHERE startedAt < ?`, timeFormat(olderThan))
	if err != nil {
		return 0, err
	}

	affected, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

func unmarshalScenario(document string) (model.TestScenario, error) {
	var sc model.TestScenario

	if err := json.Unmarshal([]byte(document), &sc); err != nil {
		return model.TestScenario{}, fmt.Errorf("unmarshaling scenario: %w", err)
	}

	return sc, nil
}

func unmarshalScenarios(documents []string) ([]model.TestScenario, error) {
	scenarios := make([]model.TestScenario, 0, len(documents))

	for _, document := range documents {
		sc, err := unmarshalScenario(document)
		if err != nil {
			return nil, err
		}

		scenarios = append(scenarios, sc)
	}

	return scenarios, nil
}

func unmarshalResult(document string) (model.TestResult, error) {
	var res model.TestResult

	if err := json.Unmarshal([]byte(document), &res); err != nil {
		return model.TestResult{}, fmt.Errorf("unmarshaling result: %w", err)
	}

	return res, nil
}

func unmarshalResults(documents []string) ([]model.TestResult, error) {
	results := make([]model.TestResult, 0, len(documents))

	for _, document := range documents {
		res, err := unmarshalResult(document)
		if err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	return results, nil
}

func hasAllTags(tags, wanted []string) bool {
	for _, w := range wanted {
		found := false
		for _, t := range tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func inClause[T ~string](column, name string, values []T, args map[string]any) []string {
	if len(values) == 0 {
		return nil
	}

	placeholders := make([]string, len(values))

	for i, v := range values {
		key := fmt.Sprintf("%s%d", name, i)
		placeholders[i] = ":" + key
		args[key] = string(v)
	}

	return []string{fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
