package models

import (
	"fmt"
	"sort"
)

// DVDChapter is a single chapter in the DVD's one title.
type DVDChapter struct {
	ChapterNumber int
	VideoFile     VideoFile
	StartTime     int // offset in the concatenated title, seconds
}

// Duration returns the chapter length in seconds.
func (c DVDChapter) Duration() int {
	return c.VideoFile.Metadata.Duration
}

// EndTime returns the chapter's end offset in seconds.
func (c DVDChapter) EndTime() int {
	return c.StartTime + c.Duration()
}

// Title returns the chapter's display title.
func (c DVDChapter) Title() string {
	return c.VideoFile.Metadata.Title
}

// Validate checks the chapter fields.
func (c DVDChapter) Validate() error {
	if c.ChapterNumber <= 0 {
		return fmt.Errorf("chapter_number must be positive")
	}
	if c.StartTime < 0 {
		return fmt.Errorf("start_time must be non-negative")
	}
	return nil
}

// DVDStructure is a DVD with a single title built from ordered chapters.
type DVDStructure struct {
	Chapters  []DVDChapter
	MenuTitle string
	TotalSize int64 // bytes
}

// Validate checks the structure: at least one chapter, unique and
// sequential chapter numbers starting at 1, and non-overlapping start
// times.
func (d DVDStructure) Validate() error {
	if len(d.Chapters) == 0 {
		return fmt.Errorf("DVD must have at least one chapter")
	}
	if d.MenuTitle == "" {
		return fmt.Errorf("menu_title cannot be empty")
	}
	if d.TotalSize < 0 {
		return fmt.Errorf("total_size must be non-negative")
	}

	seen := make(map[int]bool, len(d.Chapters))
	for _, c := range d.Chapters {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.ChapterNumber] {
			return fmt.Errorf("duplicate chapter number %d", c.ChapterNumber)
		}
		seen[c.ChapterNumber] = true
	}
	for n := 1; n <= len(d.Chapters); n++ {
		if !seen[n] {
			return fmt.Errorf("chapter numbers must be sequential starting from 1")
		}
	}

	ordered := d.ChaptersOrdered()
	for i := 1; i < len(ordered); i++ {
		if ordered[i].StartTime < ordered[i-1].EndTime() {
			return fmt.Errorf("chapter %d start time conflicts with chapter %d end time",
				ordered[i].ChapterNumber, ordered[i-1].ChapterNumber)
		}
	}
	return nil
}

// ChapterCount returns the number of chapters.
func (d DVDStructure) ChapterCount() int {
	return len(d.Chapters)
}

// TotalDuration returns the title length in seconds, measured to the
// end of the last chapter.
func (d DVDStructure) TotalDuration() int {
	if len(d.Chapters) == 0 {
		return 0
	}
	last := d.Chapters[0]
	for _, c := range d.Chapters[1:] {
		if c.ChapterNumber > last.ChapterNumber {
			last = c
		}
	}
	return last.EndTime()
}

// SizeMB returns the total size in megabytes.
func (d DVDStructure) SizeMB() float64 {
	return float64(d.TotalSize) / (1024 * 1024)
}

// SizeGB returns the total size in gigabytes.
func (d DVDStructure) SizeGB() float64 {
	return float64(d.TotalSize) / (1024 * 1024 * 1024)
}

// FitsOnDVD reports whether the structure fits the given capacity.
func (d DVDStructure) FitsOnDVD(capacityGB float64) bool {
	return d.SizeGB() <= capacityGB
}

// ChapterByNumber returns the chapter with the given number.
func (d DVDStructure) ChapterByNumber(n int) (DVDChapter, error) {
	for _, c := range d.Chapters {
		if c.ChapterNumber == n {
			return c, nil
		}
	}
	return DVDChapter{}, fmt.Errorf("chapter number %d not found", n)
}

// ChaptersOrdered returns the chapters sorted by chapter number.
func (d DVDStructure) ChaptersOrdered() []DVDChapter {
	out := make([]DVDChapter, len(d.Chapters))
	copy(out, d.Chapters)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChapterNumber < out[j].ChapterNumber
	})
	return out
}

// ChapterTimes returns the chapter start offsets in order, as used for
// DVD authoring.
func (d DVDStructure) ChapterTimes() []int {
	ordered := d.ChaptersOrdered()
	times := make([]int, len(ordered))
	for i, c := range ordered {
		times[i] = c.StartTime
	}
	return times
}
