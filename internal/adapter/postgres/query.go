package postgres

import (
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"lending/internal/domain"
)

const dialectPostgres = "postgres"

var dialect = goqu.Dialect(dialectPostgres)

// activeLoans is the live active-loan count of the book in the outer query.
var activeLoans = goqu.L("(SELECT COUNT(*) FROM loans WHERE loans.book_id = books.id AND loans.status = 'borrowed')")

const aliasActiveLoans = "active_loans"

// sqlQuery is a built statement and its positional arguments.
type sqlQuery struct {
	sql  string
	args []any
}

func build(ds interface {
	ToSQL() (string, []any, error)
}) (sqlQuery, error) {
	q, args, err := ds.ToSQL()
	if err != nil {
		return sqlQuery{}, fmt.Errorf("build query: %w", err)
	}
	return sqlQuery{sql: q, args: args}, nil
}

// likePattern wraps s for a substring ILIKE, escaping its wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func bookWhere(f domain.BookFilter) []exp.Expression {
	var where []exp.Expression
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, goqu.Or(goqu.C("title").ILike(p), goqu.C("author").ILike(p)))
	}
	if f.Genre != "" {
		where = append(where, goqu.C("genre").Eq(f.Genre))
	}
	if f.Author != "" {
		where = append(where, goqu.C("author").ILike(likePattern(f.Author)))
	}
	if f.AvailableOnly {
		where = append(where, goqu.C("total_copies").Gt(activeLoans))
	}
	return where
}

func selectBooks() *goqu.SelectDataset {
	return dialect.From("books").Prepared(true).Select(
		"id", "title", "author", "genre", "isbn", "total_copies", "created_at", "updated_at",
		activeLoans.As(aliasActiveLoans),
	)
}

func buildGetBook(id int64) (sqlQuery, error) {
	return build(selectBooks().Where(goqu.C("id").Eq(id)))
}

func buildListBooks(f domain.BookFilter, p domain.Page) (sqlQuery, error) {
	return build(selectBooks().
		Where(bookWhere(f)...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Limit(uint(p.PerPage)).
		Offset(uint(p.Offset())))
}

func buildCountBooks(f domain.BookFilter) (sqlQuery, error) {
	return build(dialect.From("books").Prepared(true).
		Select(goqu.COUNT("*")).
		Where(bookWhere(f)...))
}

func loanWhere(f domain.LoanFilter) []exp.Expression {
	var where []exp.Expression
	if f.UserID != 0 {
		where = append(where, goqu.I("l.user_id").Eq(f.UserID))
	}
	if f.BookID != 0 {
		where = append(where, goqu.I("l.book_id").Eq(f.BookID))
	}
	if f.Status != "" {
		where = append(where, goqu.I("l.status").Eq(string(f.Status)))
	}
	if f.Overdue {
		where = append(where,
			goqu.I("l.status").Eq(string(domain.LoanBorrowed)),
			goqu.I("l.due_date").Lt(f.Now))
	}
	if f.DueToday {
		start := domain.StartOfDay(f.Now)
		where = append(where,
			goqu.I("l.status").Eq(string(domain.LoanBorrowed)),
			goqu.I("l.due_date").Gte(start),
			goqu.I("l.due_date").Lt(start.AddDate(0, 0, 1)))
	}
	return where
}

func selectLoans() *goqu.SelectDataset {
	return dialect.From(goqu.T("loans").As("l")).Prepared(true).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Select(
			"l.id", "l.user_id", "l.book_id", "l.status", "l.borrowed_at", "l.due_date", "l.returned_at", "l.created_at",
			"u.first_name", "u.last_name", "u.email",
			"b.title", "b.author", "b.isbn",
		)
}

func buildGetLoan(id int64) (sqlQuery, error) {
	return build(selectLoans().Where(goqu.I("l.id").Eq(id)))
}

func buildListLoans(f domain.LoanFilter, p domain.Page) (sqlQuery, error) {
	return build(selectLoans().
		Where(loanWhere(f)...).
		Order(goqu.I("l.created_at").Desc(), goqu.I("l.id").Desc()).
		Limit(uint(p.PerPage)).
		Offset(uint(p.Offset())))
}

func buildCountLoans(f domain.LoanFilter) (sqlQuery, error) {
	return build(dialect.From(goqu.T("loans").As("l")).Prepared(true).
		Select(goqu.COUNT("*")).
		Where(loanWhere(f)...))
}
