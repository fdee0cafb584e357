package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/publicsuffix"

	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const (
	ConfidenceExactEmail   = 1.0
	ConfidenceDomain       = 0.7
	ConfidenceParentDomain = 0.5

	defaultLinkCacheSize = 1024
	defaultLinkCacheTTL  = 5 * time.Minute
)

var defaultFreeMailDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com", "outlook.com",
	"live.com", "icloud.com", "aol.com", "proton.me", "protonmail.com",
}

// Linker attaches a message to at most one CRM entity by sender address.
// An exact contact email wins over an account domain match.
type Linker struct {
	dir      repository.EntityDirectory
	freeMail map[string]bool
	cache    *expirable.LRU[string, types.EntityLink]
}

func NewLinker(dir repository.EntityDirectory, cfg types.IngestConfig) *Linker {
	size := cfg.LinkCacheSize
	if size <= 0 {
		size = defaultLinkCacheSize
	}
	ttl := cfg.LinkCacheTTL
	if ttl <= 0 {
		ttl = defaultLinkCacheTTL
	}
	domains := cfg.FreeMailDomains
	if len(domains) == 0 {
		domains = defaultFreeMailDomains
	}

	freeMail := make(map[string]bool, len(domains))
	for _, d := range domains {
		freeMail[types.NormalizeDomain(d)] = true
	}

	return &Linker{
		dir:      dir,
		freeMail: freeMail,
		cache:    expirable.NewLRU[string, types.EntityLink](size, nil, ttl),
	}
}

// Link resolves the sender of a message for userId. Lookups that find
// nothing return an unlinked result, not an error.
func (l *Linker) Link(ctx context.Context, userId, fromEmail string) (types.EntityLink, error) {
	email := strings.ToLower(strings.TrimSpace(fromEmail))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return unlinked(), nil
	}

	key := userId + "\x00" + email
	if link, ok := l.cache.Get(key); ok {
		return link, nil
	}

	link, err := l.resolve(ctx, userId, email, email[at+1:])
	if err != nil {
		return unlinked(), err
	}
	l.cache.Add(key, link)
	return link, nil
}

func (l *Linker) resolve(ctx context.Context, userId, email, domain string) (types.EntityLink, error) {
	contact, err := l.dir.FindContactByEmail(ctx, userId, email)
	if err != nil {
		return unlinked(), fmt.Errorf("find contact: %w", err)
	}
	if contact != nil {
		id := contact.Id
		return types.EntityLink{ContactId: &id, Source: types.LinkSourceHeuristic, Confidence: ConfidenceExactEmail}, nil
	}

	domain = types.NormalizeDomain(domain)
	if domain == "" || l.freeMail[domain] {
		return unlinked(), nil
	}

	for i, candidate := range candidateDomains(domain) {
		account, err := l.dir.FindAccountByDomain(ctx, userId, candidate)
		if err != nil {
			return unlinked(), fmt.Errorf("find account: %w", err)
		}
		if account == nil {
			continue
		}
		id := account.Id
		confidence := ConfidenceDomain
		if i > 0 {
			confidence = ConfidenceParentDomain
		}
		return types.EntityLink{AccountId: &id, Source: types.LinkSourceHeuristic, Confidence: confidence}, nil
	}
	return unlinked(), nil
}

// candidateDomains returns domain followed by its parents down to the
// registrable domain, e.g. mail.eu.acme.co.uk, eu.acme.co.uk, acme.co.uk
func candidateDomains(domain string) []string {
	root, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return []string{domain}
	}

	candidates := []string{domain}
	for d := domain; d != root; {
		i := strings.Index(d, ".")
		if i < 0 {
			break
		}
		d = d[i+1:]
		candidates = append(candidates, d)
	}
	return candidates
}

func unlinked() types.EntityLink {
	return types.EntityLink{Source: types.LinkSourceNone}
}
