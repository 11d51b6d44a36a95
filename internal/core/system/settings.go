package system

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

// AddArrayEntries appends the missing entries to the string array at the
// JSON pointer ptr (e.g. "/permissions/allow") in a JSONC settings file,
// creating the file and parent objects as needed. Comments survive. The
// returned change carries what was added in Owned.
func AddArrayEntries(path, ptr string, entries []string, dryRun bool) (Change, error) {
	content, existed, err := readConfigFile(path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, err
	}
	root, err := parseJSONC(content, path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, err
	}

	created, err := ensureContainers(root, ptr)
	if err != nil {
		return Change{Target: path, Action: ActionError}, fmt.Errorf("%s: %w", path, err)
	}
	have, err := arrayStrings(root, ptr)
	if err != nil {
		return Change{Target: path, Action: ActionError}, fmt.Errorf("%s: %w", path, err)
	}

	var added []string
	for _, e := range entries {
		if have[e] {
			continue
		}
		have[e] = true
		value, _ := json.Marshal(e)
		patch := fmt.Sprintf(`[{"op":"add","path":%q,"value":%s}]`, ptr+"/-", value)
		if err := root.Patch([]byte(patch)); err != nil {
			return Change{Target: path, Action: ActionError}, fmt.Errorf("adding %s to %s: %w", e, path, err)
		}
		added = append(added, e)
	}
	if existed && len(added) == 0 {
		return Change{Target: path, Action: ActionUnchanged}, nil
	}

	change, err := writeChanged(path, content, string(finalizeConfig(root)), existed, dryRun)
	if len(added) > 0 && err == nil {
		change.Detail = strings.TrimSpace(change.Detail + " added " + strings.Join(added, ", "))
		change.Owned = &Ownership{Entries: added, Container: created, Created: !existed}
	}
	return change, err
}

// RemoveArrayEntries removes own.Entries from the array at ptr. Empty
// containers are pruned up to own.Container, and a file left as "{}" is
// deleted only when own.Created says install made it.
func RemoveArrayEntries(path, ptr string, own Ownership, dryRun bool) (Change, error) {
	content, existed, err := readConfigFile(path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, err
	}
	if !existed {
		return Change{Target: path, Action: ActionSkipped, Detail: "not found"}, nil
	}
	root, err := parseJSONC(content, path)
	if err != nil {
		return Change{Target: path, Action: ActionError}, err
	}

	arr, ok := findArray(root, ptr)
	if !ok {
		return Change{Target: path, Action: ActionSkipped, Detail: "no ccb entries"}, nil
	}
	drop := make(map[string]bool, len(own.Entries))
	for _, e := range own.Entries {
		drop[e] = true
	}
	removed := 0
	for i := len(arr.Elements) - 1; i >= 0; i-- {
		lit, ok := arr.Elements[i].Value.(hujson.Literal)
		if !ok || lit.Kind() != '"' || !drop[lit.String()] {
			continue
		}
		patch := fmt.Sprintf(`[{"op":"remove","path":"%s/%d"}]`, ptr, i)
		if err := root.Patch([]byte(patch)); err != nil {
			return Change{Target: path, Action: ActionError}, fmt.Errorf("removing entry from %s: %w", path, err)
		}
		removed++
	}
	if removed == 0 {
		return Change{Target: path, Action: ActionSkipped, Detail: "no ccb entries"}, nil
	}
	if own.Container != "" {
		pruneEmpty(root, ptr, own.Container)
	}

	if dryRun {
		return Change{Target: path, Action: ActionRemoved, Detail: "dry run"}, nil
	}
	if obj, ok := root.Value.(*hujson.Object); ok && len(obj.Members) == 0 && own.Created {
		if err := os.Remove(path); err != nil {
			return Change{Target: path, Action: ActionError}, fmt.Errorf("removing %s: %w", path, err)
		}
		return Change{Target: path, Action: ActionRemoved, Detail: "file deleted"}, nil
	}
	if err := osutil.WriteFileAtomic(path, finalizeConfig(root), filePerm(path)); err != nil {
		return Change{Target: path, Action: ActionError}, err
	}
	return Change{Target: path, Action: ActionRemoved, Detail: fmt.Sprintf("%d entries", removed)}, nil
}

// MissingArrayEntries returns the entries not present in the array at ptr.
func MissingArrayEntries(path, ptr string, entries []string) ([]string, error) {
	content, _, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parseJSONC(content, path)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	if _, ok := findArray(root, ptr); ok {
		if have, err = arrayStrings(root, ptr); err != nil {
			return nil, err
		}
	}
	var missing []string
	for _, e := range entries {
		if !have[e] {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

// ensureContainers creates the objects along ptr and an empty array at
// its end. It returns the topmost pointer it created, or "".
func ensureContainers(root *hujson.Value, ptr string) (string, error) {
	segs := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	cur, top := "", ""
	for i, seg := range segs {
		cur += "/" + seg
		if root.Find(cur) != nil {
			continue
		}
		if top == "" {
			top = cur
		}
		value := "{}"
		if i == len(segs)-1 {
			value = "[]"
		}
		patch := fmt.Sprintf(`[{"op":"add","path":%q,"value":%s}]`, cur, value)
		if err := root.Patch([]byte(patch)); err != nil {
			return "", fmt.Errorf("creating %s: %w", cur, err)
		}
	}
	return top, nil
}

func findArray(root *hujson.Value, ptr string) (*hujson.Array, bool) {
	v := root.Find(ptr)
	if v == nil {
		return nil, false
	}
	arr, ok := v.Value.(*hujson.Array)
	return arr, ok
}

func arrayStrings(root *hujson.Value, ptr string) (map[string]bool, error) {
	arr, ok := findArray(root, ptr)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", ptr)
	}
	have := make(map[string]bool, len(arr.Elements))
	for _, el := range arr.Elements {
		if lit, ok := el.Value.(hujson.Literal); ok && lit.Kind() == '"' {
			have[lit.String()] = true
		}
	}
	return have, nil
}

// pruneEmpty removes the array at ptr and then each parent object, stopping
// at the first one that still has members or once stop is removed.
func pruneEmpty(root *hujson.Value, ptr, stop string) {
	for ptr != "" && len(ptr) >= len(stop) {
		v := root.Find(ptr)
		if v == nil {
			return
		}
		switch c := v.Value.(type) {
		case *hujson.Array:
			if len(c.Elements) > 0 {
				return
			}
		case *hujson.Object:
			if len(c.Members) > 0 {
				return
			}
		default:
			return
		}
		if err := root.Patch([]byte(fmt.Sprintf(`[{"op":"remove","path":%q}]`, ptr))); err != nil {
			return
		}
		ptr = ptr[:strings.LastIndex(ptr, "/")]
	}
}

// readConfigFile reads a config file. A missing file yields "" and false.
func readConfigFile(path string) (string, bool, error) {
	data, err := osutil.ReadFileIfExists(path)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), data != nil, nil
}

// parseJSONC parses a JSONC document; an empty one is treated as {}.
func parseJSONC(content, path string) (*hujson.Value, error) {
	if strings.TrimSpace(content) == "" {
		content = "{}"
	}
	root, err := hujson.Parse([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if _, ok := root.Value.(*hujson.Object); !ok {
		return nil, fmt.Errorf("parsing %s: top-level value is not an object", path)
	}
	return &root, nil
}

// finalizeConfig formats the JSONC AST and produces final output bytes.
func finalizeConfig(root *hujson.Value) []byte {
	root.Format()
	removeTrailingCommas(root)
	out := root.Pack()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}

// removeTrailingCommas walks the JSONC AST and removes trailing commas.
func removeTrailingCommas(v *hujson.Value) {
	switch vv := v.Value.(type) {
	case *hujson.Object:
		for i := range vv.Members {
			removeTrailingCommas(&vv.Members[i].Name)
			removeTrailingCommas(&vv.Members[i].Value)
		}
		if len(vv.Members) > 0 {
			vv.Members[len(vv.Members)-1].Value.AfterExtra = nil
		}
	case *hujson.Array:
		for i := range vv.Elements {
			removeTrailingCommas(&vv.Elements[i])
		}
		if len(vv.Elements) > 0 {
			vv.Elements[len(vv.Elements)-1].AfterExtra = nil
		}
	}
}
