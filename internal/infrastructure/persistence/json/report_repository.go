// Package json persists analysis reports as JSON files.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/security"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

const idLayout = "20060102T150405.000000000Z"

// reportDTO is the on-disk envelope around a report.
type reportDTO struct {
	ID      string          `json:"id"`
	SavedAt string          `json:"saved_at"`
	Report  analysis.Report `json:"report"`
}

// StoredReport is a report together with its storage id.
type StoredReport struct {
	ID      string
	SavedAt time.Time
	Report  *analysis.Report
}

// ReportRepository stores reports under <baseDir>/<chain id>/<address>/<id>.json.
// Ids sort chronologically, so directory order is history order.
type ReportRepository struct {
	baseDir string
	mu      sync.RWMutex
	now     func() time.Time
}

// NewReportRepository creates a new JSON-based report repository
func NewReportRepository(baseDir string) (*ReportRepository, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("reports directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return &ReportRepository{
		baseDir: baseDir,
		now:     time.Now,
	}, nil
}

// Save writes report and returns its id.
func (r *ReportRepository) Save(ctx context.Context, report *analysis.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("%w: nil report", sharedErrors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.safeDir(report.ChainID, report.Address)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	savedAt := r.now().UTC()
	id := savedAt.Format(idLayout)
	dto := reportDTO{
		ID:      id,
		SavedAt: savedAt.Format(time.RFC3339Nano),
		Report:  *report,
	}

	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, constants.DefaultFilePerm); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return id, nil
}

// History returns up to limit stored reports for one Safe, newest first.
// limit <= 0 returns all of them.
func (r *ReportRepository) History(ctx context.Context, chainID uint64, address common.Address, limit int) ([]StoredReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dir, err := r.safeDir(chainID, address)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []StoredReport{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]StoredReport, 0, len(names))
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stored, err := r.loadFromFile(filepath.Join(dir, name))
		if err != nil {
			// Skip corrupted files
			continue
		}
		out = append(out, stored)
	}
	return out, nil
}

// Latest returns the most recent stored report for one Safe.
func (r *ReportRepository) Latest(ctx context.Context, chainID uint64, address common.Address) (*StoredReport, error) {
	history, err := r.History(ctx, chainID, address, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, sharedErrors.ErrReportNotFound
	}
	return &history[0], nil
}

// Delete removes every stored report for one Safe.
func (r *ReportRepository) Delete(ctx context.Context, chainID uint64, address common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.safeDir(chainID, address)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return sharedErrors.ErrReportNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete reports: %w", err)
	}
	return nil
}

func (r *ReportRepository) safeDir(chainID uint64, address common.Address) (string, error) {
	return security.ResolveWithin(r.baseDir, strconv.FormatUint(chainID, 10), strings.ToLower(address.Hex()))
}

func (r *ReportRepository) loadFromFile(filePath string) (StoredReport, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return StoredReport{}, err
	}

	var dto reportDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return StoredReport{}, err
	}

	savedAt, err := time.Parse(time.RFC3339Nano, dto.SavedAt)
	if err != nil {
		return StoredReport{}, fmt.Errorf("parse saved_at: %w", err)
	}
	report := dto.Report
	for _, res := range report.Checks {
		if !res.Status.Valid() {
			return StoredReport{}, fmt.Errorf("check %s: unknown status %q", res.RuleID, res.Status)
		}
	}
	return StoredReport{ID: dto.ID, SavedAt: savedAt, Report: &report}, nil
}
