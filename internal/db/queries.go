package db

const (
	GetDiaryByID = `
		SELECT id, user_id, title, diary_date
		FROM diaries WHERE id = ?
	`

	UpsertDiary = `
		INSERT INTO diaries (id, user_id, title, diary_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			diary_date = excluded.diary_date
	`
)

const (
	GetPrintableByDiaryID = `
		SELECT diary_id, mime_type
		FROM printable_diaries WHERE diary_id = ?
	`

	UpsertPrintable = `
		INSERT INTO printable_diaries (diary_id, mime_type, rendered_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(diary_id) DO UPDATE SET
			mime_type = excluded.mime_type,
			rendered_at = CURRENT_TIMESTAMP
	`

	ListPrintablePages = `
		SELECT page_number, image_data
		FROM printable_pages WHERE diary_id = ?
		ORDER BY page_number ASC
	`

	DeletePrintablePages = `DELETE FROM printable_pages WHERE diary_id = ?`

	InsertPrintablePage = `
		INSERT INTO printable_pages (diary_id, page_number, image_data)
		VALUES (?, ?, ?)
	`
)
