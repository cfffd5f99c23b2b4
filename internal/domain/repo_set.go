package domain

import "sort"

// CombinedKey is the repository-set key meaning "all configured
// repositories combined". Aggregates for a single repository use the
// repository name itself as the key.
const CombinedKey = "all"

// RepoSet identifies the repositories an aggregation runs over together
// with the cache key the result is stored under.
type RepoSet struct {
	Key          string
	Repositories []string
}

// SingleRepo builds the set for one repository.
func SingleRepo(repository string) RepoSet {
	return RepoSet{Key: repository, Repositories: []string{repository}}
}

// Combined builds the set covering all given repositories under the
// combined sentinel key. The repository list is sorted so that equal sets
// produce equal cache keys.
func Combined(repositories []string) RepoSet {
	repos := make([]string, len(repositories))
	copy(repos, repositories)
	sort.Strings(repos)
	return RepoSet{Key: CombinedKey, Repositories: repos}
}

// Contains reports whether the set includes the repository. The combined
// set contains every repository by definition, so a sync commit for any
// repository invalidates it.
func (s RepoSet) Contains(repository string) bool {
	if s.Key == CombinedKey {
		return true
	}
	for _, r := range s.Repositories {
		if r == repository {
			return true
		}
	}
	return false
}
