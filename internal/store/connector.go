package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"faceattend/internal/attendance"
)

// State is the lifecycle of the shared database connection.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "connecting"
	}
}

// ErrUnsupportedScheme is returned for connection strings no backend handles.
var ErrUnsupportedScheme = errors.New("unsupported database scheme")

// Options configures the connector.
type Options struct {
	URI              string
	Database         string
	Timeout          time.Duration
	OneCheckInPerDay bool
}

// Connector owns the process-wide database connection. It is itself an
// attendance.Repository: calls made before the connection is ready return
// attendance.ErrNotReady, and calls made after a failed attempt return
// attendance.ErrUnavailable. It never retries.
type Connector struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.RWMutex
	state   State
	err     error
	backend attendance.Repository
	closers []func(context.Context) error

	once sync.Once
	done chan struct{}
}

// NewConnector creates a connector in the connecting state.
func NewConnector(logger zerolog.Logger, opts Options) *Connector {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Connector{opts: opts, logger: logger, done: make(chan struct{})}
}

// Start connects in the background and returns immediately.
func (c *Connector) Start(ctx context.Context) {
	go func() { _ = c.Connect(ctx) }()
}

// Connect performs the single connection attempt and records the outcome.
// Only the first call has any effect.
func (c *Connector) Connect(ctx context.Context) error {
	c.once.Do(func() {
		defer close(c.done)
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		repo, closers, err := c.open(ctx)

		c.mu.Lock()
		if err != nil {
			c.state = StateFailed
			c.err = err
		} else {
			c.state = StateReady
			c.backend = repo
			c.closers = closers
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Error().Err(err).Str("engine", Engine(c.opts.URI)).Msg("database connection error")
			c.logger.Info().Msg("quick fix: check MONGODB_URI in your .env file")
			c.logger.Info().Msg("quick fix: verify network/IP access to the database host")
			c.logger.Info().Msg("quick fix: restart the server after updating settings")
			return
		}
		c.logger.Info().Str("engine", Engine(c.opts.URI)).Msg("database connected successfully")
	})
	return c.Err()
}

func (c *Connector) open(ctx context.Context) (attendance.Repository, []func(context.Context) error, error) {
	switch Engine(c.opts.URI) {
	case "mongodb":
		m, err := NewMongo(ctx, c.opts.URI, c.opts.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := c.indexResult(m.EnsureIndexes(ctx, c.opts.OneCheckInPerDay)); err != nil {
			_ = m.Close(context.Background())
			return nil, nil, err
		}
		return NewMongoRepository(m.DB), []func(context.Context) error{m.Close}, nil
	case "postgres":
		db, err := NewDB(ctx, c.opts.URI)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, c.opts.OneCheckInPerDay); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		closeDB := func(context.Context) error { return db.Close() }
		return NewPostgresRepository(db.Client), []func(context.Context) error{closeDB}, nil
	case "memory":
		return attendance.NewMemory(c.opts.OneCheckInPerDay), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme(c.opts.URI))
	}
}

// indexResult lets the connection come up when only the attendance index
// disagrees with ATTENDANCE_ONE_PER_DAY. The service still pre-checks
// duplicates when the policy is on.
func (c *Connector) indexResult(err error) error {
	if !errors.Is(err, ErrIndexConflict) {
		return err
	}
	c.logger.Warn().Err(err).
		Bool("onePerDay", c.opts.OneCheckInPerDay).
		Msg("existing studentId_1_date_1 index kept; drop it to apply the new setting")
	return nil
}

// Engine names the storage engine selected by the connection string scheme.
func Engine(uri string) string {
	switch scheme(uri) {
	case "mongodb", "mongodb+srv":
		return "mongodb"
	case "postgres", "postgresql":
		return "postgres"
	case "memory":
		return "memory"
	default:
		return "unknown"
	}
}

func scheme(uri string) string {
	if i := strings.Index(uri, "://"); i > 0 {
		return strings.ToLower(uri[:i])
	}
	return ""
}

// State reports the current lifecycle state.
func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether the connection is usable.
func (c *Connector) Ready() bool { return c.State() == StateReady }

// Err returns the connection error, if the attempt failed.
func (c *Connector) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Done is closed once the connection attempt has finished either way.
func (c *Connector) Done() <-chan struct{} { return c.done }

// Close releases the underlying connection.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for _, fn := range closers {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

func (c *Connector) repo() (attendance.Repository, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateReady:
		return c.backend, nil
	case StateFailed:
		return nil, attendance.ErrUnavailable
	default:
		return nil, attendance.ErrNotReady
	}
}

func (c *Connector) CreateStudent(ctx context.Context, s attendance.Student) (attendance.Student, error) {
	r, err := c.repo()
	if err != nil {
		return attendance.Student{}, err
	}
	return r.CreateStudent(ctx, s)
}

func (c *Connector) GetStudent(ctx context.Context, studentID string) (attendance.Student, error) {
	r, err := c.repo()
	if err != nil {
		return attendance.Student{}, err
	}
	return r.GetStudent(ctx, studentID)
}

func (c *Connector) FindStudents(ctx context.Context, f attendance.StudentFilter) ([]attendance.Student, error) {
	r, err := c.repo()
	if err != nil {
		return nil, err
	}
	return r.FindStudents(ctx, f)
}

func (c *Connector) UpdateStudent(ctx context.Context, studentID string, u attendance.StudentUpdate) (attendance.Student, error) {
	r, err := c.repo()
	if err != nil {
		return attendance.Student{}, err
	}
	return r.UpdateStudent(ctx, studentID, u)
}

func (c *Connector) CreateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	r, err := c.repo()
	if err != nil {
		return attendance.Attendance{}, err
	}
	return r.CreateAttendance(ctx, a)
}

func (c *Connector) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	r, err := c.repo()
	if err != nil {
		return attendance.Attendance{}, err
	}
	return r.GetAttendance(ctx, id)
}

func (c *Connector) FindAttendance(ctx context.Context, f attendance.AttendanceFilter) ([]attendance.Attendance, error) {
	r, err := c.repo()
	if err != nil {
		return nil, err
	}
	return r.FindAttendance(ctx, f)
}
