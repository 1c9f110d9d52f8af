// Package gormstore is the Postgres-backed history store.
package gormstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lei/simple-copy/internal/history"
	"github.com/lei/simple-copy/internal/models"
)

// JobRecord is the persisted form of a job. Axes and modules are stored
// as JSON blobs.
type JobRecord struct {
	Name            string `gorm:"primaryKey;type:varchar(255)"`
	Kind            string `gorm:"not null;type:varchar(20)"`
	Axes            string `gorm:"type:jsonb"`
	Modules         string `gorm:"type:jsonb"`
	ACLAll          bool   `gorm:"column:acl_all_authenticated"`
	ACLUsers        string `gorm:"column:acl_users;type:jsonb"`
	Parent          string `gorm:"index;type:varchar(255)"`
	NextBuildNumber int    `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (JobRecord) TableName() string { return "jobs" }

// BuildRecord is the persisted form of a build.
type BuildRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Job          string `gorm:"not null;index;type:varchar(255)"`
	Number       int    `gorm:"not null;index"`
	Result       string `gorm:"type:varchar(20)"`
	Keep         bool
	DisplayName  string `gorm:"type:varchar(255)"`
	ArtifactsDir string `gorm:"type:varchar(500)"`
	WorkspaceDir string `gorm:"type:varchar(500)"`
	CreatedAt    time.Time
}

func (BuildRecord) TableName() string { return "builds" }

// Store is a history.Store backed by Postgres via gorm.
type Store struct {
	db        *gorm.DB
	mu        sync.Mutex
	listeners []history.RenameListener
}

var _ history.Store = (*Store)(nil)

// Open connects to Postgres and runs migrations.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&JobRecord{}, &BuildRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RegisterJob(job *models.Job) error {
	if job == nil || job.Name == "" {
		return fmt.Errorf("register job: name required")
	}
	if strings.Contains(job.Name, "/") {
		return fmt.Errorf("register job %q: name must not contain '/'", job.Name)
	}
	if job.Kind == "" {
		job.Kind = models.KindPlain
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		tx.Model(&JobRecord{}).Where("name = ?", job.Name).Count(&count)
		if count > 0 {
			return fmt.Errorf("register job %q: already exists", job.Name)
		}
		if err := tx.Create(toRecord(job)).Error; err != nil {
			return fmt.Errorf("register job %q: %w", job.Name, err)
		}

		var suffixes []string
		switch job.Kind {
		case models.KindMatrix:
			suffixes = history.AxisCombinations(job.Axes)
		case models.KindModuleSet:
			suffixes = job.Modules
		}
		for _, suffix := range suffixes {
			child := &models.Job{
				Name:   history.ChildName(job.Name, suffix),
				Kind:   models.KindPlain,
				ACL:    job.ACL,
				Parent: job.Name,
			}
			if err := tx.Create(toRecord(child)).Error; err != nil {
				return fmt.Errorf("register job %q child %q: %w", job.Name, suffix, err)
			}
		}
		return nil
	})
}

func (s *Store) ListJobs() []*models.Job {
	var recs []JobRecord
	s.db.Where("parent = ''").Order("name").Find(&recs)
	out := make([]*models.Job, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out
}

func (s *Store) RecordBuild(job string, b *models.Build) (*models.Build, error) {
	if b == nil {
		return nil, fmt.Errorf("record build: nil build")
	}
	if b.Result != "" && !b.Result.Valid() {
		return nil, fmt.Errorf("record build: unknown result %q", b.Result)
	}

	stored := *b
	stored.Job = job
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec JobRecord
		if err := tx.Where("name = ?", job).First(&rec).Error; err != nil {
			return fmt.Errorf("record build: job %q not found", job)
		}
		rec.NextBuildNumber++
		stored.Number = rec.NextBuildNumber
		if err := tx.Model(&rec).Update("next_build_number", rec.NextBuildNumber).Error; err != nil {
			return err
		}
		return tx.Create(&BuildRecord{
			Job:          job,
			Number:       stored.Number,
			Result:       string(stored.Result),
			Keep:         stored.Keep,
			DisplayName:  stored.DisplayName,
			ArtifactsDir: stored.ArtifactsDir,
			WorkspaceDir: stored.WorkspaceDir,
			CreatedAt:    stored.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) SetKeep(job string, number int, keep bool) error {
	res := s.db.Model(&BuildRecord{}).
		Where("job = ? AND number = ?", job, number).
		Update("keep", keep)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set keep: build %s#%d not found", job, number)
	}
	return nil
}

func (s *Store) RenameJob(oldName, newName string) error {
	if newName == "" || strings.Contains(newName, "/") {
		return fmt.Errorf("rename job: invalid new name %q", newName)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec JobRecord
		if err := tx.Where("name = ?", oldName).First(&rec).Error; err != nil {
			return fmt.Errorf("rename job: %q not found", oldName)
		}
		var count int64
		tx.Model(&JobRecord{}).Where("name = ?", newName).Count(&count)
		if count > 0 {
			return fmt.Errorf("rename job: %q already exists", newName)
		}

		var children []JobRecord
		if err := tx.Where("parent = ?", oldName).Find(&children).Error; err != nil {
			return err
		}
		renameOne := func(from, to string) error {
			if err := tx.Model(&JobRecord{}).Where("name = ?", from).
				Update("name", to).Error; err != nil {
				return err
			}
			return tx.Model(&BuildRecord{}).Where("job = ?", from).
				Update("job", to).Error
		}
		if err := renameOne(oldName, newName); err != nil {
			return err
		}
		for _, child := range children {
			renamed := newName + child.Name[len(oldName):]
			if err := renameOne(child.Name, renamed); err != nil {
				return err
			}
			if err := tx.Model(&JobRecord{}).Where("name = ?", renamed).
				Update("parent", newName).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	listeners := make([]history.RenameListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnJobRenamed(oldName, newName)
	}
	return nil
}

func (s *Store) AddRenameListener(l history.RenameListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) LookupJob(name string) (*models.Job, bool) {
	var rec JobRecord
	if err := s.db.Where("name = ?", name).First(&rec).Error; err != nil {
		return nil, false
	}
	return fromRecord(&rec), true
}

func (s *Store) MostRecentCompleted(job string) (*models.Build, bool) {
	var rec BuildRecord
	err := s.db.Where("job = ? AND result <> ''", job).
		Order("number DESC").First(&rec).Error
	if err != nil {
		return nil, false
	}
	return buildFromRecord(&rec), true
}

func (s *Store) PreviousCompleted(b *models.Build) (*models.Build, bool) {
	if b == nil {
		return nil, false
	}
	var rec BuildRecord
	err := s.db.Where("job = ? AND number < ? AND result <> ''", b.Job, b.Number).
		Order("number DESC").First(&rec).Error
	if err != nil {
		return nil, false
	}
	return buildFromRecord(&rec), true
}

func (s *Store) BuildByNumber(job string, number int) (*models.Build, bool) {
	var rec BuildRecord
	err := s.db.Where("job = ? AND number = ?", job, number).First(&rec).Error
	if err != nil {
		return nil, false
	}
	return buildFromRecord(&rec), true
}

func (s *Store) ConfigurationsOf(matrixJob string) []*models.Job {
	return s.children(matrixJob)
}

func (s *Store) ModulesOf(moduleSetJob string) []*models.Job {
	return s.children(moduleSetJob)
}

func (s *Store) children(parent string) []*models.Job {
	var recs []JobRecord
	s.db.Where("parent = ?", parent).Order("name").Find(&recs)
	out := make([]*models.Job, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out
}

func (s *Store) Builds(job string) []*models.Build {
	var recs []BuildRecord
	s.db.Where("job = ?", job).Order("number DESC").Find(&recs)
	out := make([]*models.Build, 0, len(recs))
	for i := range recs {
		out = append(out, buildFromRecord(&recs[i]))
	}
	return out
}

func toRecord(job *models.Job) *JobRecord {
	axes, _ := json.Marshal(job.Axes)
	modules, _ := json.Marshal(job.Modules)
	users, _ := json.Marshal(job.ACL.Users)
	return &JobRecord{
		Name:     job.Name,
		Kind:     string(job.Kind),
		Axes:     string(axes),
		Modules:  string(modules),
		ACLAll:   job.ACL.AllAuthenticated,
		ACLUsers: string(users),
		Parent:   job.Parent,
	}
}

func fromRecord(rec *JobRecord) *models.Job {
	job := &models.Job{
		Name:   rec.Name,
		Kind:   models.Kind(rec.Kind),
		Parent: rec.Parent,
		ACL:    models.AccessControl{AllAuthenticated: rec.ACLAll},
	}
	if rec.Axes != "" {
		_ = json.Unmarshal([]byte(rec.Axes), &job.Axes)
	}
	if rec.Modules != "" {
		_ = json.Unmarshal([]byte(rec.Modules), &job.Modules)
	}
	if rec.ACLUsers != "" {
		_ = json.Unmarshal([]byte(rec.ACLUsers), &job.ACL.Users)
	}
	sort.Strings(job.Modules)
	return job
}

func buildFromRecord(rec *BuildRecord) *models.Build {
	return &models.Build{
		Job:          rec.Job,
		Number:       rec.Number,
		Result:       models.Result(rec.Result),
		Keep:         rec.Keep,
		DisplayName:  rec.DisplayName,
		ArtifactsDir: rec.ArtifactsDir,
		WorkspaceDir: rec.WorkspaceDir,
		CreatedAt:    rec.CreatedAt,
	}
}
