package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/alex65536/syllabus/internal/account"
)

// Query is a PostgREST read on a single table.
type Query struct {
	c       *Client
	table   string
	columns []string
	filters url.Values
	token   string
}

func (c *Client) From(table string) *Query {
	return &Query{
		c:       c,
		table:   table,
		filters: make(url.Values),
	}
}

func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns, columns...)
	return q
}

func (q *Query) Eq(column, value string) *Query {
	q.filters.Add(column, "eq."+value)
	return q
}

// WithToken makes the request on behalf of the user, so that row level security
// policies apply to them.
func (q *Query) WithToken(accessToken string) *Query {
	q.token = accessToken
	return q
}

func (q *Query) values() url.Values {
	v := make(url.Values, len(q.filters)+1)
	for k, vs := range q.filters {
		v[k] = append([]string(nil), vs...)
	}
	if len(q.columns) != 0 {
		v.Set("select", strings.Join(q.columns, ","))
	}
	return v
}

func (q *Query) execute(ctx context.Context, accept string, out any) error {
	status, data, err := q.c.do(ctx, &request{
		method: http.MethodGet,
		path:   "/rest/v1/" + q.table,
		query:  q.values(),
		token:  q.token,
		accept: accept,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := parseAPIError(status, data)
		if apiErr.Code == codeNoRows {
			return ErrNoRows
		}
		return apiErr
	}
	return decode(data, out)
}

// Execute decodes all the matching rows into out, which must be a pointer to a slice.
func (q *Query) Execute(ctx context.Context, out any) error {
	return q.execute(ctx, "application/json", out)
}

// Single decodes exactly one row into out. It returns ErrNoRows if nothing matched.
func (q *Query) Single(ctx context.Context, out any) error {
	return q.execute(ctx, "application/vnd.pgrst.object+json", out)
}

func (c *Client) GetProfile(ctx context.Context, sess *account.Session) (account.Profile, error) {
	var profile account.Profile
	err := c.From(c.o.ProfilesTable).
		Select(account.ProfileColumns...).
		Eq("id", sess.User.ID).
		WithToken(sess.AccessToken).
		Single(ctx, &profile)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return account.Profile{}, account.ErrProfileNotFound
		}
		return account.Profile{}, err
	}
	return profile, nil
}
