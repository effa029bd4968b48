package sealed

// Event is an unsealed identification result. Its schema belongs to the
// identification backend; the proxy passes it through untouched.
type Event map[string]any

// RequestID returns products.identification.data.requestId, or "" when the
// event does not carry one.
func (e Event) RequestID() string {
	v, ok := lookup(e, "products", "identification", "data", "requestId")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// VisitorID returns products.identification.data.visitorId, or "".
func (e Event) VisitorID() string {
	v, ok := lookup(e, "products", "identification", "data", "visitorId")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
