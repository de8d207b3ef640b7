// Package catalog reads a Zotero-style SQLite library database: the
// bibliographic catalogue the indexer walks to find PDFs to ingest. The
// schema queried here follows Zotero's public sync database layout
// (items/itemData/itemDataValues/creators/collections/tags), trimmed to
// the handful of tables the indexer actually needs.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Item is one catalogue entry with an attached PDF, ready for indexing.
type Item struct {
	ItemID      string
	Title       string
	Authors     string // "; "-joined "Last, First" list
	Tags        []string
	Collections []string
	Date        string // free-form, as stored by Zotero
	Year        int    // extracted 4-digit year, or UnknownYear
	ItemType    string
	PDFPath     string
}

// UnknownYear is the sentinel used when no 4-digit year can be extracted
// from an item's date field.
const UnknownYear = -1

// NamedCount is a (name, count) pair, used for tag/collection/type
// facets.
type NamedCount struct {
	Name  string
	Count int
}

// Catalogue is the interface the indexer consumes; Reader is the only
// concrete implementation, but tests substitute an in-memory fake.
type Catalogue interface {
	ItemsWithPDFs(ctx context.Context) ([]Item, error)
	AllTags(ctx context.Context) ([]string, error)
	AllCollections(ctx context.Context) ([]NamedCount, error)
	AllItemTypes(ctx context.Context) ([]NamedCount, error)
	Close() error
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ExtractYear pulls the first 4-digit 19xx/20xx year out of a free-form
// date string, returning UnknownYear if none is present.
func ExtractYear(date string) int {
	match := yearPattern.FindString(date)
	if match == "" {
		return UnknownYear
	}
	var year int
	if _, err := fmt.Sscanf(match, "%d", &year); err != nil {
		return UnknownYear
	}
	return year
}

// Reader is the SQLite-backed Catalogue implementation.
type Reader struct {
	db *sql.DB
}

// Open opens the Zotero sqlite database at path read-only.
func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, zerrors.NewDataError("catalog", fmt.Errorf("open %s: %w", path, err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, zerrors.NewDataError("catalog", fmt.Errorf("ping %s: %w", path, err))
	}
	return &Reader{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// ItemsWithPDFs returns every top-level library item that has at least
// one PDF attachment, with its bibliographic fields resolved.
func (r *Reader) ItemsWithPDFs(ctx context.Context) ([]Item, error) {
	const baseQuery = `
		SELECT i.itemID, it.typeName,
		       COALESCE(titleVal.value, ''),
		       COALESCE(dateVal.value, ''),
		       a.path
		FROM items i
		JOIN itemTypes it ON it.itemTypeID = i.itemTypeID
		JOIN itemAttachments a ON a.parentItemID = i.itemID AND a.contentType = 'application/pdf'
		LEFT JOIN itemData titleData ON titleData.itemID = i.itemID
			AND titleData.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'title')
		LEFT JOIN itemDataValues titleVal ON titleVal.valueID = titleData.valueID
		LEFT JOIN itemData dateData ON dateData.itemID = i.itemID
			AND dateData.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'date')
		LEFT JOIN itemDataValues dateVal ON dateVal.valueID = dateData.valueID
		WHERE it.typeName NOT IN ('attachment', 'note')
		ORDER BY i.itemID`

	rows, err := r.db.QueryContext(ctx, baseQuery)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", fmt.Errorf("query items: %w", err))
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var id int64
		var it Item
		if err := rows.Scan(&id, &it.ItemType, &it.Title, &it.Date, &it.PDFPath); err != nil {
			return nil, zerrors.NewDataError("catalog", fmt.Errorf("scan item: %w", err))
		}
		it.ItemID = fmt.Sprintf("%d", id)
		it.Year = ExtractYear(it.Date)

		authors, err := r.authorsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		it.Authors = authors

		tags, err := r.tagsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		it.Tags = tags

		collections, err := r.collectionsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		it.Collections = collections

		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, zerrors.NewDataError("catalog", err)
	}
	return items, nil
}

func (r *Reader) authorsFor(ctx context.Context, itemID int64) (string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.lastName, c.firstName
		FROM itemCreators ic
		JOIN creators c ON c.creatorID = ic.creatorID
		WHERE ic.itemID = ?
		ORDER BY ic.orderIndex`, itemID)
	if err != nil {
		return "", zerrors.NewDataError("catalog", fmt.Errorf("query authors: %w", err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var last, first string
		if err := rows.Scan(&last, &first); err != nil {
			return "", zerrors.NewDataError("catalog", err)
		}
		if first != "" {
			names = append(names, last+", "+first)
		} else {
			names = append(names, last)
		}
	}
	return strings.Join(names, "; "), rows.Err()
}

func (r *Reader) tagsFor(ctx context.Context, itemID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM itemTags it2 JOIN tags t ON t.tagID = it2.tagID WHERE it2.itemID = ?`, itemID)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", fmt.Errorf("query tags: %w", err))
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, zerrors.NewDataError("catalog", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func (r *Reader) collectionsFor(ctx context.Context, itemID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.collectionName FROM collectionItems ci JOIN collections c ON c.collectionID = ci.collectionID
		WHERE ci.itemID = ?`, itemID)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", fmt.Errorf("query collections: %w", err))
	}
	defer rows.Close()

	var collections []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, zerrors.NewDataError("catalog", err)
		}
		collections = append(collections, name)
	}
	return collections, rows.Err()
}

// AllTags returns every distinct tag name in the library.
func (r *Reader) AllTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, zerrors.NewDataError("catalog", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// AllCollections returns every collection with its item count.
func (r *Reader) AllCollections(ctx context.Context) ([]NamedCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.collectionName, COUNT(ci.itemID)
		FROM collections c
		LEFT JOIN collectionItems ci ON ci.collectionID = c.collectionID
		GROUP BY c.collectionID
		ORDER BY c.collectionName`)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", err)
	}
	defer rows.Close()
	return scanNamedCounts(rows)
}

// AllItemTypes returns every item type present in the library with its
// count.
func (r *Reader) AllItemTypes(ctx context.Context) ([]NamedCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT it.typeName, COUNT(i.itemID)
		FROM itemTypes it
		JOIN items i ON i.itemTypeID = it.itemTypeID
		WHERE it.typeName NOT IN ('attachment', 'note')
		GROUP BY it.typeName
		ORDER BY it.typeName`)
	if err != nil {
		return nil, zerrors.NewDataError("catalog", err)
	}
	defer rows.Close()
	return scanNamedCounts(rows)
}

func scanNamedCounts(rows *sql.Rows) ([]NamedCount, error) {
	var out []NamedCount
	for rows.Next() {
		var nc NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, zerrors.NewDataError("catalog", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
