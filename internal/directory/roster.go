package directory

import (
	"context"
	"fmt"

	"horobot/internal/config"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

// maxPages stops a directory that keeps handing out cursors forever.
const maxPages = 10000

// Roster lists every human, non-deleted member of the workspace.
type Roster struct {
	dir      transport.Directory
	pageSize int
	log      logx.Logger
}

func NewRoster(dir transport.Directory, pageSize int, log logx.Logger) *Roster {
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	return &Roster{dir: dir, pageSize: pageSize, log: log.With(logx.String("comp", "directory.roster"))}
}

// Members walks the listing cursor until the directory stops returning one.
// Order is the service's; entries are neither deduplicated nor sorted.
func (r *Roster) Members(ctx context.Context) ([]transport.Member, error) {
	var (
		out    []transport.Member
		cursor string
		pages  int
		total  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.dir.ListUsers(ctx, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list users (page %d): %w", pages+1, err)
		}
		pages++
		total += len(page.Members)
		for _, m := range page.Members {
			if m.IsBot || m.Deleted {
				continue
			}
			out = append(out, m)
		}
		if page.NextCursor == "" {
			break
		}
		if pages >= maxPages {
			return nil, fmt.Errorf("list users: gave up after %d pages", pages)
		}
		cursor = page.NextCursor
	}
	r.log.Debug("roster fetched",
		logx.Int("pages", pages),
		logx.Int("listed", total),
		logx.Int("eligible", len(out)),
	)
	return out, nil
}
