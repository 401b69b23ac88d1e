package sql

// Level is the authentication level of a session
type Level int

const (
	// LevelNo allows nothing
	LevelNo Level = iota
	// LevelViewer can read records
	LevelViewer
	// LevelEditor can read and write records
	LevelEditor
	// LevelOwner can do everything
	LevelOwner
)

var levelNames = map[Level]string{
	LevelNo:     "no",
	LevelViewer: "viewer",
	LevelEditor: "editor",
	LevelOwner:  "owner",
}

func (level Level) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}

	return "unknown"
}

// ParseLevel parses the name of a level
func ParseLevel(name string) (Level, bool) {
	for level, levelName := range levelNames {
		if levelName == name {
			return level, true
		}
	}

	return LevelNo, false
}

// CanView returns true if the level can read records
func (level Level) CanView() bool {
	return level >= LevelViewer
}

// CanEdit returns true if the level can write records
func (level Level) CanEdit() bool {
	return level >= LevelEditor
}

// Options are the session settings statements are
// computed with
type Options struct {
	Namespace string
	Database  string
	Auth      Level
}

// Valid checks that the options select a database
func (opt *Options) Valid() error {
	switch {
	case opt.Namespace == "":
		return ErrNsEmpty
	case opt.Database == "":
		return ErrDbEmpty
	}

	return nil
}

// Check returns ErrNotAllowed if the session may not
// run a statement with the given write mode
func (opt *Options) Check(write bool) error {
	if write && !opt.Auth.CanEdit() || !opt.Auth.CanView() {
		return ErrNotAllowed
	}

	return nil
}
