package models

import "fmt"

// Category 紧急程度分类，数值越小优先级越高
type Category int

const (
	CategoryManualAlert Category = iota
	CategoryNonResponsive
	CategoryRegular
)

// Categories 按优先级排列
var Categories = []Category{CategoryManualAlert, CategoryNonResponsive, CategoryRegular}

func (c Category) String() string {
	switch c {
	case CategoryManualAlert:
		return "manual_alert"
	case CategoryNonResponsive:
		return "non_responsive"
	case CategoryRegular:
		return "regular"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// SortMode dependent 列表的排序方式
type SortMode int

const (
	SortCountdown SortMode = iota
	SortAlphabetical
	SortRecentlyAdded
)

func (m SortMode) String() string {
	switch m {
	case SortCountdown:
		return "countdown"
	case SortAlphabetical:
		return "alphabetical"
	case SortRecentlyAdded:
		return "recently_added"
	default:
		return fmt.Sprintf("sort_mode(%d)", int(m))
	}
}

// ParseSortMode 解析配置中的排序方式
func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case "countdown", "":
		return SortCountdown, nil
	case "alphabetical":
		return SortAlphabetical, nil
	case "recently_added", "recentlyAdded":
		return SortRecentlyAdded, nil
	default:
		return SortCountdown, fmt.Errorf("unknown sort mode: %q", s)
	}
}
