package idmangle

import "github.com/hupe1980/calmesh/core"

// Partition groups account-local identifiers by account handle. Accounts
// appear in the order they were first seen; each group preserves the input
// order of its identifiers.
type Partition[T any] struct {
	Accounts []core.AccountID
	Groups   map[core.AccountID][]T
}

// Len returns the number of accounts involved.
func (p *Partition[T]) Len() int { return len(p.Accounts) }

func (p *Partition[T]) add(account core.AccountID, id T) {
	if _, ok := p.Groups[account]; !ok {
		p.Accounts = append(p.Accounts, account)
	}
	p.Groups[account] = append(p.Groups[account], id)
}

func newPartition[T any]() *Partition[T] {
	return &Partition[T]{Groups: map[core.AccountID][]T{}}
}

// PartitionFolders decodes composite folder ids and groups the local folder
// ids by account. Duplicates are kept once. The first malformed id aborts the
// partitioning.
func PartitionFolders(folderIDs []string) (*Partition[string], error) {
	p := newPartition[string]()
	seen := make(map[string]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		account, local, err := DecodeFolder(id)
		if err != nil {
			return nil, err
		}
		p.add(account, local)
	}
	return p, nil
}

// PartitionEvents decodes composite event ids and groups their local forms by
// account. Duplicates are kept once.
func PartitionEvents(eventIDs []core.EventID) (*Partition[core.EventID], error) {
	p := newPartition[core.EventID]()
	seen := make(map[core.EventID]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		account, local, err := DecodeEvent(id)
		if err != nil {
			return nil, err
		}
		p.add(account, local)
	}
	return p, nil
}
