package account

import (
	"context"
	"strings"

	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm"
)

// SearchResult is one page of directory matches.
type SearchResult struct {
	Total int64
	Users []model.User
}

// Upper bounds for Search paging; they keep the row offset far from overflow.
const (
	MaxSearchPage     = 1_000_000
	maxSearchPageSize = 1000
)

// '!' instead of backslash keeps the ESCAPE clause portable between SQLite and MySQL.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// Search looks users up by keyword. An exact (case-insensitive) email match
// wins outright; otherwise first or last names starting with the keyword match.
// An empty keyword lists everyone. page is 1-based and clamped to
// MaxSearchPage.
func (s *Service) Search(ctx context.Context, keyword string, page, pageSize int) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxSearchPage {
		page = MaxSearchPage
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > maxSearchPageSize {
		pageSize = maxSearchPageSize
	}
	keyword = strings.TrimSpace(keyword)

	filter := func(db *gorm.DB) *gorm.DB { return db }
	if keyword != "" {
		email := NormalizeEmail(keyword)
		var exact int64
		if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&exact).Error; err != nil {
			return nil, err
		}
		if exact > 0 {
			filter = func(db *gorm.DB) *gorm.DB { return db.Where("email = ?", email) }
		} else {
			prefix := likeEscaper.Replace(strings.ToLower(keyword)) + "%"
			filter = func(db *gorm.DB) *gorm.DB {
				return db.Where("LOWER(first_name) LIKE ? ESCAPE '!' OR LOWER(last_name) LIKE ? ESCAPE '!'", prefix, prefix)
			}
		}
	}

	res := &SearchResult{Users: make([]model.User, 0, pageSize)}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Scopes(filter).Count(&res.Total).Error; err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Scopes(filter).
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&res.Users).Error
	if err != nil {
		return nil, err
	}
	return res, nil
}
