// Package ncbi queries NCBI E-utilities for genome assemblies and PubMed
// articles. Registration parameters (tool, email, api_key) are carried by
// the underlying apiclient as default parameters.
package ncbi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/store"
)

const (
	// MaxSearch is the largest retmax esearch accepts in one call.
	MaxSearch = 1000
	// SummaryBatch is the number of ids sent per esummary call.
	SummaryBatch = 100
)

// Client wraps an apiclient pointed at the E-utilities root.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a Client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// Search runs esearch and returns up to max uids.
func (c *Client) Search(ctx context.Context, db, term string, max int) ([]string, error) {
	max = min(max, MaxSearch)
	if max <= 0 {
		return nil, nil
	}
	var resp struct {
		Result struct {
			Count  string   `json:"count"`
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	params := apiclient.Params{
		"db":      db,
		"term":    term,
		"retmax":  strconv.Itoa(max),
		"retmode": "json",
	}
	if err := c.api.Get(ctx, "/esearch.fcgi", params, &resp); err != nil {
		return nil, fmt.Errorf("esearch %s %q: %w", db, term, err)
	}
	logging.Debug("ncbi", "esearch %s %q: %d of %s", db, term, len(resp.Result.IDList), resp.Result.Count)
	return resp.Result.IDList, nil
}

// Summary runs esummary for uids in batches and returns each document by
// uid. Uids missing from the response are absent from the map.
func (c *Client) Summary(ctx context.Context, db string, uids []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(uids))
	for start := 0; start < len(uids); start += SummaryBatch {
		batch := uids[start:min(start+SummaryBatch, len(uids))]
		var resp struct {
			Result map[string]json.RawMessage `json:"result"`
		}
		params := apiclient.Params{
			"db":      db,
			"id":      strings.Join(batch, ","),
			"retmode": "json",
		}
		if err := c.api.Get(ctx, "/esummary.fcgi", params, &resp); err != nil {
			return nil, fmt.Errorf("esummary %s: %w", db, err)
		}
		for uid, doc := range resp.Result {
			if uid == "uids" {
				continue
			}
			out[uid] = doc
		}
	}
	return out, nil
}

// Assembly is the part of an assembly summary we use.
type Assembly struct {
	UID            string              `json:"uid"`
	Accession      string              `json:"assemblyaccession"`
	Name           string              `json:"assemblyname"`
	Organism       string              `json:"organism"`
	SpeciesName    string              `json:"speciesname"`
	TaxID          mediadive.OptInt    `json:"taxid"`
	RefSeqCategory mediadive.OptString `json:"refseq_category"`
}

// GenomeID is the accession when known, otherwise the uid.
func (a Assembly) GenomeID() string {
	if a.Accession != "" {
		return a.Accession
	}
	return a.UID
}

// IsReference reports whether RefSeq marks the assembly as a reference or
// representative genome.
func (a Assembly) IsReference() bool {
	cat := strings.ToLower(a.RefSeqCategory.Value)
	return strings.Contains(cat, "reference") || strings.Contains(cat, "representative")
}

// Assemblies searches the assembly database and returns the summaries in
// search order.
func (c *Client) Assemblies(ctx context.Context, term string, max int) ([]Assembly, error) {
	uids, err := c.Search(ctx, "assembly", term, max)
	if err != nil || len(uids) == 0 {
		return nil, err
	}
	docs, err := c.Summary(ctx, "assembly", uids)
	if err != nil {
		return nil, err
	}
	out := make([]Assembly, 0, len(uids))
	for _, uid := range uids {
		doc, ok := docs[uid]
		if !ok {
			continue
		}
		var a Assembly
		if err := json.Unmarshal(doc, &a); err != nil {
			logging.Debug("ncbi", "assembly %s: %v", uid, err)
			continue
		}
		if a.UID == "" {
			a.UID = uid
		}
		out = append(out, a)
	}
	return out, nil
}

// Article is a PubMed document summary. Abstract is filled when the
// summary carries one.
type Article struct {
	PMID     string `json:"uid"`
	Title    string `json:"title"`
	Journal  string `json:"fulljournalname"`
	PubDate  string `json:"pubdate"`
	Abstract string `json:"abstract"`
}

// Text is the article text available for extraction.
func (a Article) Text() string {
	if a.Abstract != "" {
		return a.Title + ". " + a.Abstract
	}
	return a.Title
}

// PubMedSearch finds articles on the growth conditions of an organism.
func (c *Client) PubMedSearch(ctx context.Context, organism string, limit int) ([]Article, error) {
	term := fmt.Sprintf(`"%s"[Title/Abstract] AND (growth OR culture OR medium)`, organism)
	pmids, err := c.Search(ctx, "pubmed", term, limit)
	if err != nil || len(pmids) == 0 {
		return nil, err
	}
	docs, err := c.Summary(ctx, "pubmed", pmids)
	if err != nil {
		return nil, err
	}
	out := make([]Article, 0, len(docs))
	for _, pmid := range pmids {
		doc, ok := docs[pmid]
		if !ok {
			continue
		}
		var a Article
		if err := json.Unmarshal(doc, &a); err != nil {
			continue
		}
		if a.PMID == "" {
			a.PMID = pmid
		}
		out = append(out, a)
	}
	logging.Info("ncbi", "Found %d PubMed articles for %s", len(out), organism)
	return out, nil
}

// GenomeTerm builds the assembly search term for an organism group,
// optionally narrowed to a genus.
func GenomeTerm(organismType, genus string) string {
	var term string
	switch organismType {
	case store.OrganismFungi:
		term = `(fungi[Organism] OR fungal[All Fields])`
	case store.OrganismProtist:
		term = `(protist[Organism] OR protozoa[Organism])`
	case store.OrganismArchaea:
		term = `archaea[Organism]`
	case store.OrganismVirus:
		term = `viruses[Organism]`
	default:
		term = `bacteria[Organism]`
	}
	if genus != "" {
		term = fmt.Sprintf(`"%s"[Organism] AND %s`, genus, term)
	}
	return term + ` AND "complete genome"[All Fields]`
}

// SpeciesTerm searches complete genomes of one species, narrowed by the
// MediaDive domain code when it is informative.
func SpeciesTerm(species, domain string) string {
	term := fmt.Sprintf(`"%s"[Organism] AND "complete genome"[All Fields]`, species)
	switch domain {
	case "F":
		term += " AND fungi[Organism]"
	case "A":
		term += " AND archaea[Organism]"
	}
	return term
}
