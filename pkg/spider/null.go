/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package spider

import (
	"context"

	"github.com/vodbridge/vodbridge/pkg/types"
)

// nullSpider stands in for a site whose real spider failed to construct.
// Every operation succeeds with an empty result, so one broken site never
// breaks an aggregate view.
type nullSpider struct{}

func (nullSpider) Init(context.Context, types.Site) error { return nil }
func (nullSpider) Destroy()                               {}

func (nullSpider) HomeContent(context.Context, bool) (*types.HomeResult, error) {
	return &types.HomeResult{Class: []types.Category{}}, nil
}

func (nullSpider) CategoryContent(_ context.Context, _ string, pg int, _ bool, _ map[string]string) (*types.CategoryPage, error) {
	return &types.CategoryPage{List: []types.Vod{}, Page: pg, PageCount: pg}, nil
}

func (nullSpider) DetailContent(context.Context, []string) (*types.DetailResult, error) {
	return &types.DetailResult{List: []types.Vod{}}, nil
}

func (nullSpider) SearchContent(context.Context, string, bool) (*types.SearchResult, error) {
	return &types.SearchResult{List: []types.Vod{}}, nil
}

func (nullSpider) PlayerContent(_ context.Context, flag, id string, _ []string) (*types.PlayResult, error) {
	return &types.PlayResult{Parse: 0, URL: id, Flag: flag}, nil
}
