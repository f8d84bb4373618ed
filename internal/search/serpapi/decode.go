package serpapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// sourceName accepts both "Reuters" and {"name":"Reuters","icon":"..."}.
type sourceName string

func (s *sourceName) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = sourceName(str)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*s = sourceName(obj.Name)
	return nil
}

// flexNumber accepts 185.2, "185.2" and "$1,185.20".
type flexNumber struct {
	v  float64
	ok bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.v, n.ok = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n.v, n.ok = f, true
	}
	return nil
}

func (n flexNumber) ptr() *float64 {
	if !n.ok {
		return nil
	}
	v := n.v
	return &v
}
