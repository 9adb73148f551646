// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger reads and appends rows of the spreadsheet that records
// approved occupants. The main sheet is searched to find an apartment owner
// by phone or username; approved owners and roommates are appended to it and
// to a separate roommate sheet.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/phone"
)

// ErrNotConfigured is returned when no spreadsheet is configured.
var ErrNotConfigured = errors.New("ledger not configured")

const (
	// headerRow is the index of the header row; row 0 holds a title.
	headerRow = 1
	// dataOffset is the index of the first data row.
	dataOffset = 2

	dateLayout = "2006-01-02 15:04:05"
)

// SheetStore is the tabular backend of the ledger.
type SheetStore interface {
	// ReadRows returns every row of the named sheet, including title and header rows.
	ReadRows(ctx context.Context, sheet string) ([][]string, error)
	// AppendRow adds a row after the last non-empty row of the sheet.
	AppendRow(ctx context.Context, sheet string, row []string) error
	// EnsureSheet creates the sheet with header as its first row if it does
	// not exist, and reports whether it was created.
	EnsureSheet(ctx context.Context, sheet string, header []string) (bool, error)
}

// Column identifies a ledger field independent of its localized header text.
type Column int

const (
	ColDate Column = iota
	ColName
	ColUsername
	ColPhone
	ColSubjectID
	ColRole
	ColApartment
	ColArea
	ColDocType
	ColApprover
	ColOwnerName
	ColOwnerPhone
)

var columnNames = [...]string{
	ColDate:       "date",
	ColName:       "name",
	ColUsername:   "username",
	ColPhone:      "phone",
	ColSubjectID:  "telegram id",
	ColRole:       "role",
	ColApartment:  "apartment",
	ColArea:       "area",
	ColDocType:    "document type",
	ColApprover:   "approved by",
	ColOwnerName:  "owner",
	ColOwnerPhone: "owner phone",
}

func (c Column) String() string {
	if c < 0 || int(c) >= len(columnNames) {
		return fmt.Sprintf("Column(%d)", int(c))
	}
	return columnNames[c]
}

// lookupColumns must be present in the main sheet for owner lookups.
var lookupColumns = []Column{ColName, ColUsername, ColPhone, ColSubjectID, ColApartment}

// columnAliases maps lowercased header cells to columns.
var columnAliases = map[string]Column{
	"дата":             ColDate,
	"date":             ColDate,
	"піб":              ColName,
	"ім'я":             ColName,
	"name":             ColName,
	"піб співмешканця": ColName,
	"username":         ColUsername,
	"нік":              ColUsername,
	"телефон":          ColPhone,
	"phone":            ColPhone,
	"telegram id":      ColSubjectID,
	"user id":          ColSubjectID,
	"роль":             ColRole,
	"role":             ColRole,
	"квартира":         ColApartment,
	"№ квартири":       ColApartment,
	"apartment":        ColApartment,
	"площа":            ColArea,
	"area":             ColArea,
	"тип документа":    ColDocType,
	"document type":    ColDocType,
	"схвалив":          ColApprover,
	"approved by":      ColApprover,
	"власник":          ColOwnerName,
	"телефон власника": ColOwnerPhone,
}

// MainHeader is the column order of the main sheet.
var MainHeader = []string{"Дата", "ПІБ", "Username", "Телефон", "Telegram ID", "Роль", "Квартира", "Площа", "Тип документа", "Схвалив"}

// RoommateHeader is written when the roommate sheet is created.
var RoommateHeader = []string{"Дата", "ПІБ співмешканця", "Username", "Телефон", "Telegram ID", "Квартира", "Власник", "Телефон власника"}

// Gateway is the ledger API used by the workflows.
type Gateway struct {
	store         SheetStore
	mainSheet     string
	roommateSheet string
	now           func() time.Time
}

// NewGateway creates a gateway. A nil store yields a gateway whose lookups
// miss and whose writes return ErrNotConfigured.
func NewGateway(store SheetStore, mainSheet, roommateSheet string) *Gateway {
	return &Gateway{
		store:         store,
		mainSheet:     mainSheet,
		roommateSheet: roommateSheet,
		now:           time.Now,
	}
}

// Configured reports whether a backing store is present.
func (g *Gateway) Configured() bool {
	return g != nil && g.store != nil
}

// FindOwner returns the first main-sheet row matching search. A value with no
// digits or starting with "@" is matched against usernames case-insensitively;
// anything else is compared as a normalized phone number.
func (g *Gateway) FindOwner(ctx context.Context, search string) (models.OwnerRecord, bool, error) {
	if !g.Configured() {
		return models.OwnerRecord{}, false, ErrNotConfigured
	}

	search = strings.TrimSpace(search)
	if search == "" {
		return models.OwnerRecord{}, false, nil
	}

	rows, err := g.store.ReadRows(ctx, g.mainSheet)
	if err != nil {
		return models.OwnerRecord{}, false, fmt.Errorf("read %s: %w", g.mainSheet, err)
	}
	if len(rows) <= headerRow {
		return models.OwnerRecord{}, false, nil
	}

	cols := indexHeader(rows[headerRow])
	byHandle := strings.HasPrefix(search, "@") || !phone.HasDigits(search)

	var want string
	if byHandle {
		want = normalizeHandle(search)
		if want == "" {
			return models.OwnerRecord{}, false, nil
		}
	} else {
		want = phone.Normalize(search)
		if want == "" {
			return models.OwnerRecord{}, false, nil
		}
	}

	for _, row := range rows[min(dataOffset, len(rows)):] {
		var match bool
		if byHandle {
			stored := normalizeHandle(cell(row, cols, ColUsername))
			match = stored != "" && stored == want
		} else {
			match = phone.Normalize(cell(row, cols, ColPhone)) == want
		}
		if match {
			return ownerFromRow(row, cols), true, nil
		}
	}
	return models.OwnerRecord{}, false, nil
}

// AppendApproved records an approved owner request. An empty sheet selects the main sheet.
func (g *Gateway) AppendApproved(ctx context.Context, req models.PendingRequest, approver, sheet string) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	if sheet == "" {
		sheet = g.mainSheet
	}

	values := map[Column]string{
		ColDate:      g.now().Format(dateLayout),
		ColName:      req.Requester.DisplayName(),
		ColUsername:  sheetHandle(req.Requester),
		ColPhone:     req.Requester.PhoneNormal,
		ColSubjectID: strconv.FormatInt(req.Requester.SubjectID, 10),
		ColRole:      string(req.Requester.Role),
		ColApartment: req.Document.ApartmentID,
		ColArea:      req.Document.Area,
		ColDocType:   req.Document.Type.Label(),
		ColApprover:  approver,
	}

	header, err := g.header(ctx, sheet)
	if err != nil {
		return err
	}
	if err := g.store.AppendRow(ctx, sheet, buildRow(header, MainHeader, values)); err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

// AppendRoommate records a roommate approved by the apartment owner. The
// roommate sheet is created on first use.
func (g *Gateway) AppendRoommate(ctx context.Context, roommate models.Requester, owner models.OwnerRecord, apartmentID string) error {
	if !g.Configured() {
		return ErrNotConfigured
	}

	if _, err := g.store.EnsureSheet(ctx, g.roommateSheet, RoommateHeader); err != nil {
		return fmt.Errorf("ensure %s: %w", g.roommateSheet, err)
	}

	values := map[Column]string{
		ColDate:       g.now().Format(dateLayout),
		ColName:       roommate.DisplayName(),
		ColUsername:   sheetHandle(roommate),
		ColPhone:      roommate.PhoneNormal,
		ColSubjectID:  strconv.FormatInt(roommate.SubjectID, 10),
		ColApartment:  apartmentID,
		ColOwnerName:  owner.Name,
		ColOwnerPhone: owner.Phone,
	}
	row := buildRow(nil, RoommateHeader, values)
	if err := g.store.AppendRow(ctx, g.roommateSheet, row); err != nil {
		return fmt.Errorf("append to %s: %w", g.roommateSheet, err)
	}
	return nil
}

// Check reads the main sheet header and returns the lookup columns it lacks.
func (g *Gateway) Check(ctx context.Context) ([]Column, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	header, err := g.header(ctx, g.mainSheet)
	if err != nil {
		return nil, err
	}
	cols := indexHeader(header)
	var missing []Column
	for _, col := range lookupColumns {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing, nil
}

// header reads the header row of sheet; nil means the default order applies.
func (g *Gateway) header(ctx context.Context, sheet string) ([]string, error) {
	rows, err := g.store.ReadRows(ctx, sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", sheet, err)
	}
	if len(rows) <= headerRow {
		return nil, nil
	}
	return rows[headerRow], nil
}

// buildRow orders values by the sheet's header, falling back to def when the
// header is missing or has no recognizable columns.
func buildRow(header, def []string, values map[Column]string) []string {
	cols := indexHeader(header)
	if len(cols) == 0 {
		header = def
		cols = indexHeader(def)
	}
	row := make([]string, len(header))
	for col, i := range cols {
		row[i] = values[col]
	}
	return row
}

// indexHeader maps recognized columns to their positions. The first
// occurrence of a column wins.
func indexHeader(header []string) map[Column]int {
	cols := make(map[Column]int, len(header))
	for i, h := range header {
		col, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := cols[col]; !dup {
			cols[col] = i
		}
	}
	return cols
}

func cell(row []string, cols map[Column]int, col Column) string {
	i, ok := cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// noHandle is the placeholder older rows carry for accounts without a username.
const noHandle = "—"

// sheetHandle is the Username cell for r; accounts without a username get an
// empty cell.
func sheetHandle(r models.Requester) string {
	if r.Username == "" {
		return ""
	}
	return "@" + r.Username
}

// cellHandle strips the marker from a Username cell. Blank cells and the
// placeholder yield "".
func cellHandle(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "@")
	if v == noHandle {
		return ""
	}
	return v
}

func normalizeHandle(v string) string {
	return strings.ToLower(cellHandle(v))
}

func ownerFromRow(row []string, cols map[Column]int) models.OwnerRecord {
	rec := models.OwnerRecord{
		Name:        cell(row, cols, ColName),
		Phone:       cell(row, cols, ColPhone),
		Username:    cellHandle(cell(row, cols, ColUsername)),
		ApartmentID: cell(row, cols, ColApartment),
	}
	if id, err := strconv.ParseInt(cell(row, cols, ColSubjectID), 10, 64); err == nil {
		rec.SubjectID = id
	}
	return rec
}
