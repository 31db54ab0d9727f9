package sidcache

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/trove-io/trove/pkg/types"
)

// Save writes every record as a hierarchical text snapshot, modeled
// directly on SID_cache_dump_to_file's grammar:
//
//	<ServerDefines>
//	  <ServerDef>
//	    Alias <alias>
//	    SID <uuid-string>
//	    Address <url>(<bmi_int>)
//	    Attributes name1=int name2=int ...
//	    Type <ROLE>(<fs_id>) <ROLE>(<fs_id>) ...
//	  </ServerDef>
//	  ...
//	</ServerDefines>
func (c *Cache) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "<ServerDefines>")

	sids := make([]types.SID, 0, len(c.records))
	for sid := range c.records {
		sids = append(sids, sid)
	}
	sortByOrder(sids, c.order)

	for _, sid := range sids {
		rec := c.records[sid]
		fmt.Fprintln(bw, "  <ServerDef>")
		if rec.Alias != "" {
			fmt.Fprintf(bw, "    Alias %s\n", rec.Alias)
		}
		fmt.Fprintf(bw, "    SID %s\n", rec.SID.String())
		fmt.Fprintf(bw, "    Address %s(%d)\n", rec.URL, bmiPlaceholder(rec.BMIAddr))

		attrNames := make([]string, 0, len(rec.Attrs))
		for name := range rec.Attrs {
			attrNames = append(attrNames, name)
		}
		sortStrings(attrNames)
		fmt.Fprint(bw, "    Attributes")
		for _, name := range attrNames {
			fmt.Fprintf(bw, " %s=%d", name, rec.Attrs[name])
		}
		fmt.Fprintln(bw)

		fmt.Fprint(bw, "    Type")
		for _, tb := range rec.Types {
			fmt.Fprintf(bw, " %s(%d)", tb.Role, tb.FSID)
		}
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "  </ServerDef>")
	}
	fmt.Fprintln(bw, "</ServerDefines>")
	return bw.Flush()
}

// Load replaces the cache's contents with the records parsed from r,
// reproducing the original multiset of records and type bindings.
// Unknown role names are errors; unrecognized attribute names are
// accepted (the format has no registry of valid attribute names to
// reject against).
func (c *Cache) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var cur *types.SidRecord

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = make(map[types.SID]types.SidRecord)
	c.order = make(map[types.SID]int)
	c.attrs = make(map[string]*attrIndex)
	c.typeIndex = make(map[types.TypeBinding]map[types.SID]struct{})
	c.seq = 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line == "<ServerDefines>" || line == "</ServerDefines>":
			continue
		case line == "<ServerDef>":
			cur = &types.SidRecord{Attrs: make(map[string]int32)}
			continue
		case line == "</ServerDef>":
			if cur != nil {
				c.order[cur.SID] = c.seq
				c.seq++
				c.records[cur.SID] = *cur
				c.indexLocked(*cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			return types.NewError(types.KindInvalidArgument, "sidcache.Load",
				fmt.Errorf("record field outside <ServerDef>: %q", line))
		}

		field, rest, _ := strings.Cut(line, " ")
		switch field {
		case "Alias":
			cur.Alias = rest
		case "SID":
			sid, err := uuid.Parse(rest)
			if err != nil {
				return types.NewError(types.KindInvalidArgument, "sidcache.Load", err)
			}
			cur.SID = sid
		case "Address":
			url, bmi, err := parseAddress(rest)
			if err != nil {
				return types.NewError(types.KindInvalidArgument, "sidcache.Load", err)
			}
			cur.URL = url
			cur.BMIAddr = bmi
		case "Attributes":
			if rest == "" {
				continue
			}
			for _, tok := range strings.Fields(rest) {
				name, valStr, ok := strings.Cut(tok, "=")
				if !ok {
					return types.NewError(types.KindInvalidArgument, "sidcache.Load",
						fmt.Errorf("malformed attribute %q", tok))
				}
				val, err := strconv.ParseInt(valStr, 10, 32)
				if err != nil {
					return types.NewError(types.KindInvalidArgument, "sidcache.Load", err)
				}
				cur.Attrs[name] = int32(val)
			}
		case "Type":
			if rest == "" {
				continue
			}
			for _, tok := range strings.Fields(rest) {
				tb, err := parseTypeBinding(tok)
				if err != nil {
					return types.NewError(types.KindInvalidArgument, "sidcache.Load", err)
				}
				cur.Types = append(cur.Types, tb)
			}
		default:
			return types.NewError(types.KindInvalidArgument, "sidcache.Load",
				fmt.Errorf("unrecognized field %q", field))
		}
	}
	if err := scanner.Err(); err != nil {
		return types.NewError(types.KindIOError, "sidcache.Load", err)
	}
	return nil
}

// parseAddress parses "url(bmi_int)" written by Save.
func parseAddress(s string) (url string, bmi string, err error) {
	open := strings.LastIndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", "", fmt.Errorf("malformed Address %q", s)
	}
	url = s[:open]
	bmiNum := s[open+1 : len(s)-1]
	if _, convErr := strconv.ParseInt(bmiNum, 10, 64); convErr != nil {
		return "", "", fmt.Errorf("malformed Address bmi field %q", s)
	}
	return url, url, nil
}

// bmiPlaceholder derives a stable integer from a BMI address string for
// the snapshot's "Address url(bmi_int)" field. The original format
// stores BMI_addr, an opaque library handle recomputed on load from the
// url; this reimplementation stores url as the BMI address directly
// (types.SidRecord.BMIAddr), so the integer is cosmetic only.
func bmiPlaceholder(bmiAddr string) int64 {
	var h int64
	for _, b := range []byte(bmiAddr) {
		h = h*31 + int64(b)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// parseTypeBinding parses "ROLE(fs_id)".
func parseTypeBinding(tok string) (types.TypeBinding, error) {
	open := strings.IndexByte(tok, '(')
	if open < 0 || !strings.HasSuffix(tok, ")") {
		return types.TypeBinding{}, fmt.Errorf("malformed type binding %q", tok)
	}
	roleStr := tok[:open]
	role := types.Role(roleStr)
	if !types.ValidRole(role) {
		return types.TypeBinding{}, fmt.Errorf("unknown role %q", roleStr)
	}
	fsIDStr := tok[open+1 : len(tok)-1]
	fsID, err := strconv.ParseUint(fsIDStr, 10, 32)
	if err != nil {
		return types.TypeBinding{}, fmt.Errorf("malformed fs_id in %q", tok)
	}
	return types.TypeBinding{Role: role, FSID: uint32(fsID)}, nil
}

func sortByOrder(sids []types.SID, order map[types.SID]int) {
	for i := 1; i < len(sids); i++ {
		for j := i; j > 0 && order[sids[j]] < order[sids[j-1]]; j-- {
			sids[j], sids[j-1] = sids[j-1], sids[j]
		}
	}
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j] < ss[j-1]; j-- {
			ss[j], ss[j-1] = ss[j-1], ss[j]
		}
	}
}
