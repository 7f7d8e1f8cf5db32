//go:build !notmuch || !cgo

package notmuch

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"unicode"
)

type sqliteQuery struct {
	db    *sqliteDB
	query string
	sort  Sort
}

func sqliteQueryOf(h handle) *sqliteQuery {
	return (*sqliteQuery)(h)
}

func (sqliteEngine) queryCreate(h handle, query string) handle {
	return handle(&sqliteQuery{db: sqliteDBOf(h), query: query, sort: SortNewestFirst})
}

func (sqliteEngine) queryString(h handle) string { return sqliteQueryOf(h).query }
func (sqliteEngine) querySetSort(h handle, sort Sort) { sqliteQueryOf(h).sort = sort }
func (sqliteEngine) queryGetSort(h handle) Sort { return sqliteQueryOf(h).sort }
func (sqliteEngine) queryDestroy(h handle) {}

// compile returns the WHERE clause and its arguments for q, or a status with
// the database status string set.
func (q *sqliteQuery) compile() (string, []any, Status) {
	if q.db.closed {
		return "", nil, StatusClosedDatabase
	}
	where, args, err := compileQuery(q.query)
	if err != nil {
		q.db.setErr("bad query %q: %v", q.query, err)
		return "", nil, StatusBadQuerySyntax
	}
	return where, args, StatusSuccess
}

func (q *sqliteQuery) orderBy() string {
	switch q.sort {
	case SortOldestFirst:
		return "m.date ASC, m.id ASC"
	case SortMessageID:
		return "m.message_id ASC"
	case SortUnsorted:
		return "m.id ASC"
	default:
		return "m.date DESC, m.id DESC"
	}
}

func (q *sqliteQuery) search() ([]*sqliteMessage, Status) {
	where, args, st := q.compile()
	if st != StatusSuccess {
		return nil, st
	}
	msgs, err := q.db.loadMessages(q.db.sql,
		`SELECT `+sqliteMessageColumns+` FROM messages m WHERE `+where+` ORDER BY `+q.orderBy(), args...)
	if err != nil {
		return nil, q.db.fail("search", err)
	}
	return msgs, StatusSuccess
}

func (sqliteEngine) querySearchMessages(h handle) (handle, Status) {
	msgs, st := sqliteQueryOf(h).search()
	if st != StatusSuccess {
		return nil, st
	}
	return handle(&sqliteMessages{msgs: msgs}), StatusSuccess
}

func (sqliteEngine) queryCountMessages(h handle) (uint, Status) {
	return sqliteQueryOf(h).count(`COUNT(*)`)
}

func (sqliteEngine) queryCountThreads(h handle) (uint, Status) {
	return sqliteQueryOf(h).count(`COUNT(DISTINCT m.thread_id)`)
}

func (q *sqliteQuery) count(expr string) (uint, Status) {
	where, args, st := q.compile()
	if st != StatusSuccess {
		return 0, st
	}
	var n int64
	if err := q.db.sql.QueryRow(`SELECT `+expr+` FROM messages m WHERE `+where, args...).Scan(&n); err != nil {
		return 0, q.db.fail("count", err)
	}
	return uint(n), StatusSuccess
}

type sqliteThread struct {
	id       string
	subject  string
	authors  string
	matched  int
	oldest   int64
	newest   int64
	tags     []string
	messages []*sqliteMessage
}

type sqliteThreads struct {
	items []*sqliteThread
	i     int
}

func sqliteThreadOf(h handle) *sqliteThread {
	return (*sqliteThread)(h)
}

func sqliteThreadsOf(h handle) *sqliteThreads {
	return (*sqliteThreads)(h)
}

func (sqliteEngine) querySearchThreads(h handle) (handle, Status) {
	q := sqliteQueryOf(h)
	matched, st := q.search()
	if st != StatusSuccess {
		return nil, st
	}

	var order []string
	first := map[string]*sqliteMessage{}
	matchedIDs := map[int64]bool{}
	for _, m := range matched {
		matchedIDs[m.id] = true
		if _, ok := first[m.threadID]; !ok {
			first[m.threadID] = m
			order = append(order, m.threadID)
		}
	}

	threads := &sqliteThreads{}
	for _, tid := range order {
		all, err := q.db.loadMessages(q.db.sql,
			`SELECT `+sqliteMessageColumns+` FROM messages m WHERE m.thread_id = ? ORDER BY m.date ASC, m.id ASC`, tid)
		if err != nil {
			return nil, q.db.fail("search threads", err)
		}
		tags, err := collectStrings(q.db.sql,
			`SELECT DISTINCT t.tag FROM tags t JOIN messages m ON m.id = t.message WHERE m.thread_id = ? ORDER BY t.tag`, tid)
		if err != nil {
			return nil, q.db.fail("search threads", err)
		}
		th := &sqliteThread{
			id:       tid,
			subject:  first[tid].subject,
			tags:     tags,
			messages: all,
		}
		var matchedAuthors, otherAuthors []string
		for _, m := range all {
			name := authorName(m.author)
			if matchedIDs[m.id] {
				th.matched++
				if !slices.Contains(matchedAuthors, name) {
					matchedAuthors = append(matchedAuthors, name)
				}
			} else if !slices.Contains(otherAuthors, name) {
				otherAuthors = append(otherAuthors, name)
			}
		}
		otherAuthors = slices.DeleteFunc(otherAuthors, func(a string) bool { return slices.Contains(matchedAuthors, a) })
		th.authors = strings.Join(matchedAuthors, ", ")
		if len(otherAuthors) > 0 {
			th.authors += "| " + strings.Join(otherAuthors, ", ")
		}
		if len(all) > 0 {
			th.oldest = all[0].date
			th.newest = all[len(all)-1].date
		}
		threads.items = append(threads.items, th)
	}
	return handle(threads), StatusSuccess
}

// authorName returns the display name of a From header, falling back to the
// address.
func authorName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

func (sqliteEngine) threadsValid(h handle) bool {
	t := sqliteThreadsOf(h)
	return t.i < len(t.items)
}

func (sqliteEngine) threadsGet(h handle) handle {
	t := sqliteThreadsOf(h)
	if t.i >= len(t.items) {
		return nil
	}
	return handle(t.items[t.i])
}

func (sqliteEngine) threadsMoveToNext(h handle) {
	t := sqliteThreadsOf(h)
	if t.i < len(t.items) {
		t.i++
	}
}

func (sqliteEngine) threadID(h handle) string { return sqliteThreadOf(h).id }
func (sqliteEngine) threadSubject(h handle) string { return sqliteThreadOf(h).subject }
func (sqliteEngine) threadAuthors(h handle) string { return sqliteThreadOf(h).authors }
func (sqliteEngine) threadTotalMessages(h handle) int { return len(sqliteThreadOf(h).messages) }
func (sqliteEngine) threadMatchedMessages(h handle) int { return sqliteThreadOf(h).matched }
func (sqliteEngine) threadOldestDate(h handle) int64 { return sqliteThreadOf(h).oldest }
func (sqliteEngine) threadNewestDate(h handle) int64 { return sqliteThreadOf(h).newest }

func (sqliteEngine) threadTags(h handle) handle {
	return handle(&sqliteStrings{items: slices.Clone(sqliteThreadOf(h).tags)})
}

func (sqliteEngine) threadMessages(h handle) handle {
	return handle(&sqliteMessages{msgs: slices.Clone(sqliteThreadOf(h).messages)})
}

// Query language
//
// Terms are separated by whitespace and combined with AND. "or" between two
// terms joins them into one alternative, binding tighter than the implicit
// AND. A term prefixed with "-" or preceded by "not" is negated. Double
// quotes group words into one term. "*" matches every message.
//
// Supported prefixes: tag: is: id: mid: thread: folder: path: from: to:
// subject:. Terms without a prefix match the subject, sender, recipients and
// body.

type queryToken struct {
	text   string
	quoted bool
}

type queryTerm struct {
	negate bool
	sql    string
	args   []any
}

var errEmptyPrefixValue = errors.New("empty value after prefix")

func tokenizeQuery(s string) ([]queryToken, error) {
	var (
		tokens  []queryToken
		cur     strings.Builder
		inQuote bool
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			tokens = append(tokens, queryToken{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		quoted, started = false, false
	}
	for _, r := range s {
		switch {
		case r == '"':
			if !started {
				quoted = true
			}
			started = true
			inQuote = !inQuote
		case inQuote:
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case r == '(' || r == ')':
			return nil, fmt.Errorf("parentheses are not supported")
		default:
			started = true
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unbalanced quote")
	}
	flush()
	return tokens, nil
}

func compileQuery(query string) (string, []any, error) {
	tokens, err := tokenizeQuery(query)
	if err != nil {
		return "", nil, err
	}

	var (
		groups     [][]queryTerm
		negateNext bool
		orNext     bool
	)
	for _, tok := range tokens {
		if !tok.quoted {
			switch strings.ToLower(tok.text) {
			case "and":
				if len(groups) == 0 || orNext || negateNext {
					return "", nil, fmt.Errorf("dangling AND")
				}
				continue
			case "or":
				if len(groups) == 0 || orNext || negateNext {
					return "", nil, fmt.Errorf("dangling OR")
				}
				orNext = true
				continue
			case "not":
				negateNext = !negateNext
				continue
			}
		}
		text, negate := tok.text, negateNext
		negateNext = false
		if !tok.quoted && len(text) > 1 && text[0] == '-' {
			text, negate = text[1:], !negate
		}
		term, err := compileTerm(text, tok.quoted)
		if err != nil {
			return "", nil, err
		}
		term.negate = negate
		if orNext {
			groups[len(groups)-1] = append(groups[len(groups)-1], term)
			orNext = false
		} else {
			groups = append(groups, []queryTerm{term})
		}
	}
	if orNext || negateNext {
		return "", nil, fmt.Errorf("query ends with an operator")
	}
	if len(groups) == 0 {
		return "1", nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, group := range groups {
		parts := make([]string, 0, len(group))
		for _, term := range group {
			if term.negate {
				parts = append(parts, "NOT ("+term.sql+")")
			} else {
				parts = append(parts, "("+term.sql+")")
			}
			args = append(args, term.args...)
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}
	return strings.Join(where, " AND "), args, nil
}

const folderMatch = `EXISTS (SELECT 1 FROM files f JOIN directories d ON d.id = f.directory WHERE f.message = m.id AND `

func compileTerm(text string, quoted bool) (queryTerm, error) {
	if !quoted {
		if text == "*" {
			return queryTerm{sql: "1"}, nil
		}
		if i := strings.IndexByte(text, ':'); i > 0 {
			prefix, value := strings.ToLower(text[:i]), text[i+1:]
			if value == "" {
				return queryTerm{}, fmt.Errorf("%w %q", errEmptyPrefixValue, prefix)
			}
			return compilePrefixTerm(prefix, value)
		}
	}
	like := "%" + escapeLike(text) + "%"
	return queryTerm{
		sql: `m.subject LIKE ? ESCAPE '\' OR m.author LIKE ? ESCAPE '\' OR m.recipients LIKE ? ESCAPE '\' OR m.body LIKE ? ESCAPE '\'`,
		args: []any{like, like, like, like},
	}, nil
}

func compilePrefixTerm(prefix, value string) (queryTerm, error) {
	switch prefix {
	case "tag", "is":
		return queryTerm{sql: `EXISTS (SELECT 1 FROM tags t WHERE t.message = m.id AND t.tag = ?)`, args: []any{value}}, nil
	case "id", "mid":
		return queryTerm{sql: `m.message_id = ?`, args: []any{trimMessageID(value)}}, nil
	case "thread":
		return queryTerm{sql: `m.thread_id = ?`, args: []any{value}}, nil
	case "folder":
		value = strings.Trim(value, "/")
		sub := func(name string) string {
			if value == "" {
				return name
			}
			return value + "/" + name
		}
		return queryTerm{sql: folderMatch + `d.path IN (?, ?, ?))`, args: []any{value, sub("cur"), sub("new")}}, nil
	case "path":
		if base, ok := strings.CutSuffix(value, "/**"); ok {
			base = strings.Trim(base, "/")
			if base == "" {
				return queryTerm{sql: folderMatch + `1)`}, nil
			}
			return queryTerm{
				sql:  folderMatch + `(d.path = ? OR d.path LIKE ? ESCAPE '\'))`,
				args: []any{base, escapeLike(base) + "/%"},
			}, nil
		}
		return queryTerm{sql: folderMatch + `d.path = ?)`, args: []any{strings.Trim(value, "/")}}, nil
	case "from":
		return queryTerm{sql: `m.author LIKE ? ESCAPE '\'`, args: []any{"%" + escapeLike(value) + "%"}}, nil
	case "to":
		return queryTerm{sql: `m.recipients LIKE ? ESCAPE '\'`, args: []any{"%" + escapeLike(value) + "%"}}, nil
	case "subject":
		return queryTerm{sql: `m.subject LIKE ? ESCAPE '\'`, args: []any{"%" + escapeLike(value) + "%"}}, nil
	default:
		return queryTerm{}, fmt.Errorf("unknown prefix %q", prefix)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
