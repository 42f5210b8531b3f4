package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/orrn/diaryprint/internal/core"
)

// MemoryRepository is a map-backed diary source for tests and local runs
// without a database file.
type MemoryRepository struct {
	mu         sync.RWMutex
	diaries    map[string]core.Diary
	printables map[string]core.PrintableDiary
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		diaries:    make(map[string]core.Diary),
		printables: make(map[string]core.PrintableDiary),
	}
}

func (m *MemoryRepository) GetDiary(_ context.Context, diaryID string) (*core.Diary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	diary, ok := m.diaries[diaryID]
	if !ok {
		return nil, fmt.Errorf("%w: diary %s", core.ErrNotFound, diaryID)
	}
	return &diary, nil
}

func (m *MemoryRepository) GetPrintable(_ context.Context, diaryID string) (*core.PrintableDiary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	printable, ok := m.printables[diaryID]
	if !ok {
		return nil, fmt.Errorf("%w: printable diary %s", core.ErrNotFound, diaryID)
	}
	printable.Pages = append([]core.Page(nil), printable.Pages...)
	return &printable, nil
}

func (m *MemoryRepository) SaveDiary(_ context.Context, diary *core.Diary, printable *core.PrintableDiary) error {
	if diary == nil || diary.ID == "" {
		return fmt.Errorf("%w: diary id is required", core.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.diaries[diary.ID] = *diary
	if printable != nil {
		stored := core.PrintableDiary{
			DiaryID:  diary.ID,
			MimeType: printable.MimeType,
			Pages:    append([]core.Page(nil), printable.Pages...),
		}
		if stored.MimeType == "" {
			stored.MimeType = "image/png"
		}
		sort.SliceStable(stored.Pages, func(i, j int) bool {
			return stored.Pages[i].PageNumber < stored.Pages[j].PageNumber
		})
		m.printables[diary.ID] = stored
	}
	return nil
}
