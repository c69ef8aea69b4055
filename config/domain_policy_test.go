package config

import "testing"

func TestDomainPolicyNormalize(t *testing.T) {
	cfg := DomainPolicy{
		Allow: []string{"Gouv.fr", "https://www.georisques.gouv.fr/risques", "gouv.fr"},
		Deny:  []string{"www.Scribd.com", " "},
	}
	norm := cfg.Normalize()
	if len(norm.Allow) != 2 || norm.Allow[0] != "georisques.gouv.fr" || norm.Allow[1] != "gouv.fr" {
		t.Fatalf("unexpected allow list: %#v", norm.Allow)
	}
	if len(norm.Deny) != 1 || norm.Deny[0] != "scribd.com" {
		t.Fatalf("unexpected deny list: %#v", norm.Deny)
	}
}

func TestDomainPolicyValidate(t *testing.T) {
	if err := (DomainPolicy{Allow: []string{"gouv.fr"}, Deny: []string{"scribd.com"}}).Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := (DomainPolicy{Allow: []string{"gouv.fr"}, Deny: []string{"www.gouv.fr"}}).Validate(); err == nil {
		t.Fatalf("expected conflict validation error")
	}
}

func TestDomainPolicyAllows(t *testing.T) {
	open := DomainPolicy{Deny: []string{"scribd.com"}}
	if !open.Allows("https://www.paris.fr/dicrim.pdf") {
		t.Fatalf("open policy should admit paris.fr")
	}
	if open.Allows("https://fr.scribd.com/doc/1") {
		t.Fatalf("denied subdomain admitted")
	}

	strict := DomainPolicy{Allow: []string{"gouv.fr"}}
	if !strict.Allows("https://www.isere.gouv.fr/ddrm.pdf") {
		t.Fatalf("subdomain of allowed host rejected")
	}
	if strict.Allows("https://notgouv.fr/x.pdf") {
		t.Fatalf("suffix without dot must not match")
	}
	if strict.Allows("::not a url") {
		t.Fatalf("unparseable url admitted")
	}
}
