package service

import "fmt"

// Level is a depth of the category tree
type Level int

const (
	LevelCategory Level = iota
	LevelSubcategory
	LevelSubItem

	levelCount
)

func (l Level) String() string {
	switch l {
	case LevelCategory:
		return "category"
	case LevelSubcategory:
		return "subcategory"
	case LevelSubItem:
		return "rubro"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ResumeCursor decides which nodes to skip when a run restarts from a given
// path. Each level skips siblings until its own id is seen, then stops
// skipping for the rest of the run.
//
// A target id that never shows up prunes that whole branch; the path is
// expected to name a position that exists.
type ResumeCursor struct {
	targets  [levelCount]string
	skipping [levelCount]bool
}

// NewResumeCursor builds a cursor from a 0-3 segment path. An empty path skips nothing.
func NewResumeCursor(path []string) (*ResumeCursor, error) {
	if len(path) > int(levelCount) {
		return nil, fmt.Errorf("resume path has %d segments, at most %d allowed", len(path), levelCount)
	}

	c := &ResumeCursor{}
	for i, id := range path {
		if id == "" {
			continue
		}
		c.targets[i] = id
		c.skipping[i] = true
	}
	return c, nil
}

// ShouldSkip is called once per node, top-down and in sibling order
func (c *ResumeCursor) ShouldSkip(level Level, id string) bool {
	if level < 0 || level >= levelCount || !c.skipping[level] {
		return false
	}
	if id == c.targets[level] {
		c.skipping[level] = false
		return false
	}
	return true
}

// Active reports whether any level is still skipping
func (c *ResumeCursor) Active() bool {
	for _, s := range c.skipping {
		if s {
			return true
		}
	}
	return false
}

// Pending returns the target of a level that is still skipping, or ""
func (c *ResumeCursor) Pending(level Level) string {
	if level < 0 || level >= levelCount || !c.skipping[level] {
		return ""
	}
	return c.targets[level]
}
