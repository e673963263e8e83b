package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// fakeDB is an in-process stand-in for the MySQL schema that answers
// exactly the statements the repositories issue.  SELECT ... FOR UPDATE
// on an event row holds that row until the transaction ends and a
// rollback undoes the transaction's writes, so connection pool and
// locking behaviour can be observed without a server.  Unknown
// statements fail loudly.
type fakeDB struct {
	mu    sync.Mutex
	clock time.Time
	seq   int64

	companies map[int64]bool
	users     map[int64]*userRow
	events    map[int64]*eventRow
	regs      map[int64]*regRow
	songs     map[int64]*songRow
	votes     map[int64]*voteRow
	locks     map[int64]chan struct{}

	// onBegin, when set, runs on the driver connection right after a
	// transaction begins.
	onBegin func()
}

type userRow struct {
	id      int64
	email   string
	age     driver.Value
	created time.Time
}

type eventRow struct {
	id, companyID, capGeneral, capVIP int64
	name, genre                       string
	minAge                            driver.Value
	active                            bool
	created, updated                  time.Time
}

type regRow struct {
	id, userID, eventID   int64
	tier, status          string
	registeredAt, updated time.Time
}

type songRow struct {
	id, eventID          int64
	title, artist, genre string
	externalID           driver.Value
	created              time.Time
}

type voteRow struct {
	id, songID       int64
	userID           driver.Value
	voterKey, kind   string
	created, updated time.Time
}

func (u *userRow) values() []driver.Value {
	return []driver.Value{u.id, u.email, "", u.age, u.created, u.created}
}

func (e *eventRow) values() []driver.Value {
	active := int64(0)
	if e.active {
		active = 1
	}
	return []driver.Value{e.id, e.companyID, e.name, e.genre, e.capGeneral, e.capVIP, e.minAge, active, e.created, e.updated}
}

func (r *regRow) values() []driver.Value {
	return []driver.Value{r.id, r.userID, r.eventID, r.tier, r.status, r.registeredAt, r.updated}
}

func (s *songRow) values() []driver.Value {
	return []driver.Value{s.id, s.eventID, s.title, s.artist, s.externalID, s.genre, s.created}
}

func (v *voteRow) values() []driver.Value {
	return []driver.Value{v.id, v.songID, v.userID, v.voterKey, v.kind, v.created, v.updated}
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		clock:     time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		companies: make(map[int64]bool),
		users:     make(map[int64]*userRow),
		events:    make(map[int64]*eventRow),
		regs:      make(map[int64]*regRow),
		songs:     make(map[int64]*songRow),
		votes:     make(map[int64]*voteRow),
		locks:     make(map[int64]chan struct{}),
	}
}

// open returns a pool over f capped at maxConns connections.
func (f *fakeDB) open(t *testing.T, maxConns int) *sql.DB {
	t.Helper()
	db := sql.OpenDB(fakeConnector{f})
	db.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (f *fakeDB) nextID() int64 {
	f.seq++
	return f.seq
}

func (f *fakeDB) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeDB) addCompany() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID()
	f.companies[id] = true
	return id
}

// addUser inserts a user; age is nil or an int64.
func (f *fakeDB) addUser(age driver.Value) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &userRow{id: f.nextID(), age: age, created: f.tick()}
	u.email = fmt.Sprintf("user%d@example.com", u.id)
	f.users[u.id] = u
	return u.id
}

// addEvent inserts an active rock event; minAge is nil or an int64.
func (f *fakeDB) addEvent(capGeneral, capVIP int64, minAge driver.Value) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	company := f.nextID()
	f.companies[company] = true
	e := &eventRow{
		id: f.nextID(), companyID: company, name: "Night", genre: "rock",
		capGeneral: capGeneral, capVIP: capVIP, minAge: minAge, active: true,
	}
	e.created = f.tick()
	e.updated = e.created
	f.events[e.id] = e
	return e.id
}

// registrations returns copies of the event's rows.
func (f *fakeDB) registrations(eventID int64) []regRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []regRow
	for _, r := range f.regs {
		if r.eventID == eventID {
			out = append(out, *r)
		}
	}
	return out
}

func (f *fakeDB) activeCount(eventID int64, tier string) int64 {
	var n int64
	for _, r := range f.regs {
		if r.eventID == eventID && r.status == "active" && (tier == "" || r.tier == tier) {
			n++
		}
	}
	return n
}

func (f *fakeDB) lockFor(eventID int64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[eventID]
	if !ok {
		l = make(chan struct{}, 1)
		f.locks[eventID] = l
	}
	return l
}

type fakeConnector struct{ db *fakeDB }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{db: c.db}, nil }
func (c fakeConnector) Driver() driver.Driver                        { return fakeDriver{c.db} }

type fakeDriver struct{ db *fakeDB }

func (d fakeDriver) Open(string) (driver.Conn, error) { return &fakeConn{db: d.db}, nil }

type fakeConn struct {
	db *fakeDB
	tx *fakeTx
}

type fakeTx struct {
	conn  *fakeConn
	locks []int64
	undo  []func()
}

var (
	_ driver.ConnBeginTx    = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
	_ driver.ExecerContext  = (*fakeConn)(nil)
)

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fakedb: prepared statements are not supported")
}

func (c *fakeConn) Close() error {
	c.end(true)
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.tx = &fakeTx{conn: c}
	if c.db.onBegin != nil {
		c.db.onBegin()
	}
	return c.tx, nil
}

func (t *fakeTx) Commit() error {
	t.conn.end(false)
	return nil
}

func (t *fakeTx) Rollback() error {
	t.conn.end(true)
	return nil
}

// end finishes the open transaction, undoing its writes on rollback,
// and releases its row locks.
func (c *fakeConn) end(rollback bool) {
	tx := c.tx
	if tx == nil {
		return
	}
	c.tx = nil
	if rollback {
		c.db.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		c.db.mu.Unlock()
	}
	for _, id := range tx.locks {
		<-c.db.lockFor(id)
	}
}

// lockEvent blocks until the event row lock is granted to this
// connection's transaction or ctx ends.  Outside a transaction the lock
// would last one statement, so it is skipped.
func (c *fakeConn) lockEvent(ctx context.Context, eventID int64) error {
	if c.tx == nil {
		return nil
	}
	for _, id := range c.tx.locks {
		if id == eventID {
			return nil
		}
	}
	select {
	case c.db.lockFor(eventID) <- struct{}{}:
		c.tx.locks = append(c.tx.locks, eventID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) onRollback(fn func()) {
	if c.tx != nil {
		c.tx.undo = append(c.tx.undo, fn)
	}
}

func normalize(q string) string { return strings.Join(strings.Fields(q), " ") }

func plain(nv []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(nv))
	for i, v := range nv {
		out[i] = v.Value
	}
	return out
}

func num(v driver.Value) int64 {
	n, _ := v.(int64)
	return n
}

func dupError(key string) error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key '" + key + "'"}
}

func fkError(table, column string) error {
	return &mysql.MySQLError{Number: 1452, Message: fmt.Sprintf(
		"Cannot add or update a child row: a foreign key constraint fails (%s.%s)", table, column)}
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, nv []driver.NamedValue) (driver.Rows, error) {
	q := normalize(query)
	args := plain(nv)
	if strings.Contains(q, "FROM events e WHERE e.id = ? FOR UPDATE") {
		if err := c.lockEvent(ctx, num(args[0])); err != nil {
			return nil, err
		}
	}

	f := c.db
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(q, "FROM events e WHERE e.id = ?"):
		e, ok := f.events[num(args[0])]
		if !ok {
			return rowsOf(), nil
		}
		vals := e.values()
		if strings.Contains(q, "(SELECT COUNT(*)") {
			vals = append(vals, f.activeCount(e.id, ""))
		}
		return rowsOf(vals), nil

	case strings.HasPrefix(q, "SELECT id,email,display_name,age"):
		if u, ok := f.users[num(args[0])]; ok {
			return rowsOf(u.values()), nil
		}
		return rowsOf(), nil

	case strings.HasPrefix(q, "SELECT id, user_id, event_id, tier"):
		byID := strings.Contains(q, "WHERE id = ?")
		for _, r := range f.regs {
			if byID && r.id == num(args[0]) ||
				!byID && r.eventID == num(args[0]) && r.userID == num(args[1]) {
				return rowsOf(r.values()), nil
			}
		}
		return rowsOf(), nil

	case strings.HasPrefix(q, "SELECT COUNT(*) FROM registrations"):
		return rowsOf([]driver.Value{f.activeCount(num(args[0]), args[1].(string))}), nil

	case strings.HasPrefix(q, "SELECT tier, COUNT(*) FROM registrations"):
		var out [][]driver.Value
		for _, tier := range []string{"general", "vip"} {
			if n := f.activeCount(num(args[0]), tier); n > 0 {
				out = append(out, []driver.Value{tier, n})
			}
		}
		return rowsOf(out...), nil

	case strings.HasPrefix(q, "SELECT s.id"):
		byID := strings.Contains(q, "WHERE s.id = ?")
		for _, s := range f.songs {
			if byID && s.id == num(args[0]) ||
				!byID && s.eventID == num(args[0]) && s.externalID == args[1] {
				return rowsOf(s.values()), nil
			}
		}
		return rowsOf(), nil

	case strings.HasPrefix(q, "SELECT id, song_id"):
		byID := strings.Contains(q, "WHERE id = ?")
		for _, v := range f.votes {
			if byID && v.id == num(args[0]) ||
				!byID && v.songID == num(args[0]) && v.voterKey == args[1] {
				return rowsOf(v.values()), nil
			}
		}
		return rowsOf(), nil

	case strings.HasPrefix(q, "SELECT COALESCE(SUM(kind = 'up'), 0)"):
		t := f.tally(func(v *voteRow) bool { return v.songID == num(args[0]) })
		return rowsOf([]driver.Value{t[0], t[1]}), nil

	case strings.HasPrefix(q, "SELECT v.song_id, SUM"):
		var out [][]driver.Value
		for _, s := range f.songs {
			if s.eventID != num(args[0]) {
				continue
			}
			t := f.tally(func(v *voteRow) bool { return v.songID == s.id })
			if t[0]+t[1] > 0 {
				out = append(out, []driver.Value{s.id, t[0], t[1]})
			}
		}
		return rowsOf(out...), nil

	case strings.HasPrefix(q, "SELECT v.id, v.song_id"):
		var out [][]driver.Value
		for _, v := range f.votes {
			if s, ok := f.songs[v.songID]; ok && s.eventID == num(args[0]) && v.voterKey == args[1] {
				out = append(out, v.values())
			}
		}
		return rowsOf(out...), nil
	}
	return nil, fmt.Errorf("fakedb: unsupported query %q", q)
}

// tally counts up and down votes matching keep.
func (f *fakeDB) tally(keep func(*voteRow) bool) [2]int64 {
	var t [2]int64
	for _, v := range f.votes {
		if !keep(v) {
			continue
		}
		if v.kind == "up" {
			t[0]++
		} else {
			t[1]++
		}
	}
	return t
}

func (c *fakeConn) ExecContext(_ context.Context, query string, nv []driver.NamedValue) (driver.Result, error) {
	q := normalize(query)
	args := plain(nv)

	f := c.db
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.HasPrefix(q, "INSERT INTO events "):
		if !f.companies[num(args[0])] {
			return nil, fkError("events", "company_id")
		}
		e := &eventRow{
			id: f.nextID(), companyID: num(args[0]), name: args[1].(string), genre: args[2].(string),
			capGeneral: num(args[3]), capVIP: num(args[4]), minAge: args[5], active: true,
		}
		e.created = f.tick()
		e.updated = e.created
		f.events[e.id] = e
		c.onRollback(func() { delete(f.events, e.id) })
		return fakeResult{id: e.id, n: 1}, nil

	case strings.HasPrefix(q, "INSERT INTO registrations "):
		userID, eventID := num(args[0]), num(args[1])
		if _, ok := f.users[userID]; !ok {
			return nil, fkError("registrations", "user_id")
		}
		if _, ok := f.events[eventID]; !ok {
			return nil, fkError("registrations", "event_id")
		}
		for _, r := range f.regs {
			if r.userID == userID && r.eventID == eventID {
				return nil, dupError("uq_registrations_user_event")
			}
		}
		r := &regRow{
			id: f.nextID(), userID: userID, eventID: eventID, tier: args[2].(string),
			status: "active", registeredAt: args[3].(time.Time), updated: f.tick(),
		}
		f.regs[r.id] = r
		c.onRollback(func() { delete(f.regs, r.id) })
		return fakeResult{id: r.id, n: 1}, nil

	case strings.HasPrefix(q, "UPDATE registrations SET status = 'active'"):
		r, ok := f.regs[num(args[2])]
		if !ok || r.status != "cancelled" {
			return fakeResult{}, nil
		}
		prev := *r
		r.status, r.tier, r.registeredAt, r.updated = "active", args[0].(string), args[1].(time.Time), f.tick()
		c.onRollback(func() { *r = prev })
		return fakeResult{n: 1}, nil

	case strings.HasPrefix(q, "UPDATE registrations SET status = 'cancelled'"):
		var n int64
		for _, r := range f.regs {
			if r.eventID == num(args[0]) && r.userID == num(args[1]) && r.status == "active" {
				prev := *r
				r.status, r.updated = "cancelled", f.tick()
				c.onRollback(func() { *r = prev })
				n++
			}
		}
		return fakeResult{n: n}, nil

	case strings.HasPrefix(q, "INSERT INTO songs "):
		eventID := num(args[0])
		if _, ok := f.events[eventID]; !ok {
			return nil, fkError("songs", "event_id")
		}
		if args[3] != nil {
			for _, s := range f.songs {
				if s.eventID == eventID && s.externalID == args[3] {
					return nil, dupError("uq_songs_event_external")
				}
			}
		}
		s := &songRow{
			id: f.nextID(), eventID: eventID, title: args[1].(string), artist: args[2].(string),
			externalID: args[3], genre: args[4].(string), created: f.tick(),
		}
		f.songs[s.id] = s
		c.onRollback(func() { delete(f.songs, s.id) })
		return fakeResult{id: s.id, n: 1}, nil

	case strings.HasPrefix(q, "INSERT INTO votes "):
		if !strings.Contains(q, ") AS new ON DUPLICATE KEY UPDATE kind = new.kind, user_id = new.user_id") {
			return nil, fmt.Errorf("fakedb: vote upsert must use the row alias form, got %q", q)
		}
		songID, userID, key, kind := num(args[0]), args[1], args[2].(string), args[3].(string)
		if _, ok := f.songs[songID]; !ok {
			return nil, fkError("votes", "song_id")
		}
		if userID != nil {
			if _, ok := f.users[num(userID)]; !ok {
				return nil, fkError("votes", "user_id")
			}
		}
		for _, v := range f.votes {
			if v.songID == songID && v.voterKey == key {
				prev := *v
				v.kind, v.userID, v.updated = kind, userID, f.tick()
				c.onRollback(func() { *v = prev })
				return fakeResult{id: v.id, n: 2}, nil
			}
		}
		v := &voteRow{id: f.nextID(), songID: songID, userID: userID, voterKey: key, kind: kind}
		v.created = f.tick()
		v.updated = v.created
		f.votes[v.id] = v
		c.onRollback(func() { delete(f.votes, v.id) })
		return fakeResult{id: v.id, n: 1}, nil

	case strings.HasPrefix(q, "DELETE FROM votes WHERE id = ?"):
		v, ok := f.votes[num(args[0])]
		if !ok {
			return fakeResult{}, nil
		}
		delete(f.votes, v.id)
		c.onRollback(func() { f.votes[v.id] = v })
		return fakeResult{n: 1}, nil
	}
	return nil, fmt.Errorf("fakedb: unsupported statement %q", q)
}

type fakeResult struct{ id, n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

type fakeRows struct {
	width int
	rows  [][]driver.Value
}

func rowsOf(rows ...[]driver.Value) *fakeRows {
	r := &fakeRows{rows: rows}
	if len(rows) > 0 {
		r.width = len(rows[0])
	}
	return r
}

func (r *fakeRows) Columns() []string {
	cols := make([]string, r.width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	return cols
}

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}
