// Package query names the client's cached reads and re-runs them when a
// mutation makes them stale.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindGroupList       Kind = "group_list"
	KindGroupDetail     Kind = "group_detail"
	KindTransactionPage Kind = "transaction_page"
)

// Key identifies one cached read. For transaction pages, Page 0 stands for
// every page of the group.
type Key struct {
	Kind    Kind
	GroupID string
	Page    int
}

func GroupList() Key {
	return Key{Kind: KindGroupList}
}

func GroupDetail(groupID string) Key {
	return Key{Kind: KindGroupDetail, GroupID: groupID}
}

func TransactionPage(groupID string, page int) Key {
	return Key{Kind: KindTransactionPage, GroupID: groupID, Page: page}
}

// TransactionPages matches every page of the group.
func TransactionPages(groupID string) Key {
	return Key{Kind: KindTransactionPage, GroupID: groupID}
}

// Matches reports whether invalidating one key affects the other. It is
// symmetric.
func (k Key) Matches(other Key) bool {
	if k.Kind != other.Kind {
		return false
	}
	switch k.Kind {
	case KindGroupList:
		return true
	case KindGroupDetail:
		return k.GroupID == other.GroupID
	case KindTransactionPage:
		if k.GroupID != other.GroupID {
			return false
		}
		return k.Page == 0 || other.Page == 0 || k.Page == other.Page
	default:
		return false
	}
}

func (k Key) String() string {
	switch k.Kind {
	case KindGroupList:
		return string(k.Kind)
	case KindGroupDetail:
		return fmt.Sprintf("%s/%s", k.Kind, k.GroupID)
	default:
		if k.Page == 0 {
			return fmt.Sprintf("%s/%s/*", k.Kind, k.GroupID)
		}
		return fmt.Sprintf("%s/%s/%d", k.Kind, k.GroupID, k.Page)
	}
}

// cacheKey also folds in the page size, which changes page contents.
func (k Key) cacheKey(limit int) string {
	return strings.Join([]string{string(k.Kind), k.GroupID, strconv.Itoa(k.Page), strconv.Itoa(limit)}, "|")
}

func parseCacheKey(s string) (Key, bool) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Key{}, false
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, false
	}
	return Key{Kind: Kind(parts[0]), GroupID: parts[1], Page: page}, true
}

// What each mutation makes stale.

func AfterCreateGroup() []Key {
	return []Key{GroupList()}
}

func AfterJoinGroup() []Key {
	return []Key{GroupList()}
}

// AfterRecordTransaction lists the pages first so the ledger's page 1 is
// refetched before the collection's balances.
func AfterRecordTransaction(groupID string) []Key {
	return []Key{TransactionPages(groupID), GroupList()}
}

func AfterMembershipChange(groupID string) []Key {
	return []Key{GroupDetail(groupID), GroupList()}
}
