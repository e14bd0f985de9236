// Package character maps a skill-tracking character sheet onto a document.
//
// Layout under the document root:
//
//	Player Name  text
//	Skills       list
//	  <skill>    list        one per skill, labelled with the skill name
//	    record   list        one per practice session
//	      date     text      YYYY-MM-DD
//	      duration number    minutes, non-negative integer
package character

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/sheetmyself/internal/sheet"
)

// Labels and defaults of the sheet layout.
const (
	PlayerNameLabel   = "Player Name"
	SkillsLabel       = "Skills"
	RecordLabel       = "record"
	DateLabel         = "date"
	DurationLabel     = "duration"
	DefaultPlayerName = "New Player Name"
	DefaultSkillName  = "new skill"

	// DateLayout is the stored form of record dates.
	DateLayout = "2006-01-02"
)

// Skill is a skill entity as seen by callers.
type Skill struct {
	ID   sheet.SheetID
	Name string
}

// Record is one practice session. Date is a calendar date at midnight UTC.
type Record struct {
	ID      sheet.SheetID
	Date    time.Time
	Minutes int
}

// Sheet is a character sheet view over a document. It holds no state of its
// own beyond the ids of the two root entities.
type Sheet struct {
	doc    *sheet.Document
	player sheet.SheetID
	skills sheet.SheetID
}

// Open locates the Player Name and Skills entities at the document root,
// creating whichever is missing.
func Open(doc *sheet.Document) (*Sheet, error) {
	top, err := doc.ListChildren(sheet.Root)
	if err != nil {
		return nil, fmt.Errorf("open character sheet: %w", err)
	}

	s := &Sheet{doc: doc}
	var havePlayer, haveSkills bool
	for _, e := range top {
		switch {
		case e.Label == PlayerNameLabel && !havePlayer:
			if e.Value.Kind() != sheet.KindText {
				return nil, fmt.Errorf("open character sheet: %w: %q holds a %s value", sheet.ErrTypeMismatch, PlayerNameLabel, e.Value.Kind())
			}
			s.player, havePlayer = e.ID, true
		case e.Label == SkillsLabel && !haveSkills:
			if e.Value.Kind() != sheet.KindList {
				return nil, fmt.Errorf("open character sheet: %w: %q holds a %s value", sheet.ErrTypeMismatch, SkillsLabel, e.Value.Kind())
			}
			s.skills, haveSkills = e.ID, true
		}
	}

	if !havePlayer {
		s.player, err = doc.CreateTypedEntity(sheet.Root, PlayerNameLabel, sheet.KindText, sheet.Text(DefaultPlayerName))
		if err != nil {
			return nil, fmt.Errorf("open character sheet: %w", err)
		}
	}
	if !haveSkills {
		s.skills, err = doc.CreateTypedEntity(sheet.Root, SkillsLabel, sheet.KindList, sheet.List())
		if err != nil {
			return nil, fmt.Errorf("open character sheet: %w", err)
		}
	}
	return s, nil
}

// Document returns the underlying document.
func (s *Sheet) Document() *sheet.Document {
	return s.doc
}

// SetPlayerName replaces the player name.
func (s *Sheet) SetPlayerName(name string) error {
	return s.doc.UpdateValue(s.player, sheet.Text(name))
}

// PlayerName returns the player name.
func (s *Sheet) PlayerName() (string, error) {
	e, err := s.doc.Query(s.player)
	if err != nil {
		return "", err
	}
	name, _ := e.Value.AsText()
	return name, nil
}

// AddSkill appends a skill. An empty name becomes DefaultSkillName.
func (s *Sheet) AddSkill(name string) (sheet.SheetID, error) {
	if name == "" {
		name = DefaultSkillName
	}
	return s.doc.CreateTypedEntity(s.skills, name, sheet.KindList, sheet.List())
}

// RenameSkill changes a skill's name.
func (s *Sheet) RenameSkill(id sheet.SheetID, name string) error {
	if err := s.checkSkill(id); err != nil {
		return err
	}
	return s.doc.Rename(id, name)
}

// RemoveSkill deletes a skill and all of its records.
func (s *Sheet) RemoveSkill(id sheet.SheetID) error {
	if err := s.checkSkill(id); err != nil {
		return err
	}
	return s.doc.DeleteEntity(id)
}

// Skills lists skills in display order.
func (s *Sheet) Skills() ([]Skill, error) {
	children, err := s.doc.ListChildren(s.skills)
	if err != nil {
		return nil, err
	}
	skills := make([]Skill, 0, len(children))
	for _, e := range children {
		skills = append(skills, Skill{ID: e.ID, Name: e.Label})
	}
	return skills, nil
}

// FindSkill returns the first skill with the given name.
func (s *Sheet) FindSkill(name string) (Skill, error) {
	skills, err := s.Skills()
	if err != nil {
		return Skill{}, err
	}
	for _, sk := range skills {
		if sk.Name == name {
			return sk, nil
		}
	}
	return Skill{}, fmt.Errorf("%w: no skill named %q", sheet.ErrNotFound, name)
}

func (s *Sheet) checkSkill(id sheet.SheetID) error {
	e, err := s.doc.Query(id)
	if err != nil {
		return err
	}
	if e.Parent != s.skills {
		return fmt.Errorf("%w: %s is not a skill", sheet.ErrInvalidArgument, id)
	}
	return nil
}

func (s *Sheet) checkRecord(id sheet.SheetID) (sheet.Entity, error) {
	e, err := s.doc.Query(id)
	if err != nil {
		return e, err
	}
	if e.Label != RecordLabel || e.Parent.IsRoot() {
		return e, fmt.Errorf("%w: %s is not a practice record", sheet.ErrInvalidArgument, id)
	}
	if err := s.checkSkill(e.Parent); err != nil {
		return e, fmt.Errorf("%w: %s is not a practice record", sheet.ErrInvalidArgument, id)
	}
	return e, nil
}

// maxMinutes bounds stored durations so they convert to int on every platform.
const maxMinutes = math.MaxInt32

func validateMinutes(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %d", sheet.ErrInvalidArgument, minutes)
	}
	if minutes > maxMinutes {
		return fmt.Errorf("%w: duration %d exceeds %d minutes", sheet.ErrInvalidArgument, minutes, maxMinutes)
	}
	return nil
}

// AddRecord logs a practice session on date lasting minutes.
func (s *Sheet) AddRecord(skill sheet.SheetID, date time.Time, minutes int) (sheet.SheetID, error) {
	if err := validateMinutes(minutes); err != nil {
		return sheet.Root, err
	}
	if err := s.checkSkill(skill); err != nil {
		return sheet.Root, err
	}

	id, err := s.doc.CreateTypedEntity(skill, RecordLabel, sheet.KindList, sheet.List())
	if err != nil {
		return sheet.Root, err
	}
	if _, err := s.doc.CreateTypedEntity(id, DateLabel, sheet.KindText, sheet.Text(FormatDate(date))); err != nil {
		return sheet.Root, s.discardRecord(id, err)
	}
	if _, err := s.doc.CreateTypedEntity(id, DurationLabel, sheet.KindNumber, sheet.Number(float64(minutes))); err != nil {
		return sheet.Root, s.discardRecord(id, err)
	}
	return id, nil
}

// discardRecord removes a half-built record and returns the error that stopped it.
func (s *Sheet) discardRecord(id sheet.SheetID, cause error) error {
	if err := s.doc.DeleteEntity(id); err != nil {
		return fmt.Errorf("%w (discarding record %s: %v)", cause, id, err)
	}
	return cause
}

// UpdateRecord replaces a record's date and duration.
func (s *Sheet) UpdateRecord(id sheet.SheetID, date time.Time, minutes int) error {
	if err := validateMinutes(minutes); err != nil {
		return err
	}
	if _, err := s.checkRecord(id); err != nil {
		return err
	}
	dateID, durationID, err := s.recordFields(id)
	if err != nil {
		return err
	}
	if err := s.doc.UpdateValue(dateID, sheet.Text(FormatDate(date))); err != nil {
		return err
	}
	return s.doc.UpdateValue(durationID, sheet.Number(float64(minutes)))
}

// RemoveRecord deletes a record.
func (s *Sheet) RemoveRecord(id sheet.SheetID) error {
	if _, err := s.checkRecord(id); err != nil {
		return err
	}
	return s.doc.DeleteEntity(id)
}

// Records lists a skill's records in display order.
func (s *Sheet) Records(skill sheet.SheetID) ([]Record, error) {
	if err := s.checkSkill(skill); err != nil {
		return nil, err
	}
	children, err := s.doc.ListChildren(skill)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(children))
	for _, e := range children {
		r, err := s.readRecord(e.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// SortRecords reorders a skill's records by date, keeping the relative
// order of records on the same day.
func (s *Sheet) SortRecords(skill sheet.SheetID) error {
	records, err := s.Records(skill)
	if err != nil {
		return err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	order := make([]sheet.SheetID, len(records))
	for i, r := range records {
		order[i] = r.ID
	}
	return s.doc.Reorder(skill, order)
}

func (s *Sheet) recordFields(id sheet.SheetID) (dateID, durationID sheet.SheetID, err error) {
	children, err := s.doc.ListChildren(id)
	if err != nil {
		return sheet.Root, sheet.Root, err
	}
	var haveDate, haveDuration bool
	for _, c := range children {
		switch {
		case c.Label == DateLabel && !haveDate:
			dateID, haveDate = c.ID, true
		case c.Label == DurationLabel && !haveDuration:
			durationID, haveDuration = c.ID, true
		}
	}
	if !haveDate || !haveDuration {
		return sheet.Root, sheet.Root, fmt.Errorf("%w: record %s lacks a date or duration", sheet.ErrNotFound, id)
	}
	return dateID, durationID, nil
}

func (s *Sheet) readRecord(id sheet.SheetID) (Record, error) {
	dateID, durationID, err := s.recordFields(id)
	if err != nil {
		return Record{}, err
	}
	dateEntity, err := s.doc.Query(dateID)
	if err != nil {
		return Record{}, err
	}
	durationEntity, err := s.doc.Query(durationID)
	if err != nil {
		return Record{}, err
	}

	text, ok := dateEntity.Value.AsText()
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s: date is a %s value", sheet.ErrTypeMismatch, id, dateEntity.Value.Kind())
	}
	date, err := ParseDate(text)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	minutes, ok := durationEntity.Value.AsNumber()
	if !ok {
		return Record{}, fmt.Errorf("%w: record %s: duration is a %s value", sheet.ErrTypeMismatch, id, durationEntity.Value.Kind())
	}
	if minutes < 0 || minutes != math.Trunc(minutes) {
		return Record{}, fmt.Errorf("%w: record %s: duration %v is not a whole number of minutes", sheet.ErrInvalidArgument, id, minutes)
	}
	if minutes > maxMinutes {
		return Record{}, fmt.Errorf("%w: record %s: duration %v exceeds %d minutes", sheet.ErrInvalidArgument, id, minutes, maxMinutes)
	}
	return Record{ID: id, Date: date, Minutes: int(minutes)}, nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", sheet.ErrInvalidArgument, s)
	}
	return t, nil
}

// civilDate returns the calendar date of t at midnight UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
