/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	where    Where
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}
func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetWhere() Where {
	return p.where
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// Filter renders the request as a find filter for the current page.
func (p *PageRequest) Filter() *Filter {
	return &Filter{
		Where: p.where,
		Order: append([]string(nil), p.orders...),
		Limit: p.GetPageSize(),
		Skip:  p.GetOffset(),
	}
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, where Where, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, where, orders}
}

// NewPageRequestWithWhere constructs a PageRequest with a filter only.
func NewPageRequestWithWhere(page int, pageSize int, where Where) *PageRequest {
	return NewPageRequest(page, pageSize, where, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// Pages returns the number of pages needed for Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}
