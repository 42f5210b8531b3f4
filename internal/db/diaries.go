package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/orrn/diaryprint/internal/core"
)

func (d *DB) GetDiary(ctx context.Context, diaryID string) (*core.Diary, error) {
	diary := &core.Diary{}
	err := d.conn.QueryRowContext(ctx, GetDiaryByID, diaryID).Scan(
		&diary.ID, &diary.UserID, &diary.Title, &diary.Date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: diary %s", core.ErrNotFound, diaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diary: %w", err)
	}
	return diary, nil
}

// GetPrintable returns the rendered pages of a diary ordered by page number.
// core.ErrNotFound means the diary has not been rendered yet.
func (d *DB) GetPrintable(ctx context.Context, diaryID string) (*core.PrintableDiary, error) {
	printable := &core.PrintableDiary{}
	err := d.conn.QueryRowContext(ctx, GetPrintableByDiaryID, diaryID).Scan(
		&printable.DiaryID, &printable.MimeType,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: printable diary %s", core.ErrNotFound, diaryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printable diary: %w", err)
	}

	rows, err := d.conn.QueryContext(ctx, ListPrintablePages, diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list printable pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var page core.Page
		if err := rows.Scan(&page.PageNumber, &page.ImageData); err != nil {
			return nil, fmt.Errorf("failed to scan printable page: %w", err)
		}
		printable.Pages = append(printable.Pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read printable pages: %w", err)
	}

	return printable, nil
}

// SaveDiary stores a diary and, when printable is non-nil, replaces its
// rendered pages.
func (d *DB) SaveDiary(ctx context.Context, diary *core.Diary, printable *core.PrintableDiary) error {
	if diary == nil || diary.ID == "" {
		return fmt.Errorf("%w: diary id is required", core.ErrValidation)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, UpsertDiary, diary.ID, diary.UserID, diary.Title, diary.Date); err != nil {
		return fmt.Errorf("failed to save diary: %w", err)
	}

	if printable != nil {
		mimeType := printable.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		if _, err := tx.ExecContext(ctx, UpsertPrintable, diary.ID, mimeType); err != nil {
			return fmt.Errorf("failed to save printable diary: %w", err)
		}
		if _, err := tx.ExecContext(ctx, DeletePrintablePages, diary.ID); err != nil {
			return fmt.Errorf("failed to clear printable pages: %w", err)
		}
		for _, page := range printable.Pages {
			if _, err := tx.ExecContext(ctx, InsertPrintablePage, diary.ID, page.PageNumber, page.ImageData); err != nil {
				return fmt.Errorf("failed to save page %d: %w", page.PageNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit diary: %w", err)
	}
	return nil
}
