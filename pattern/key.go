package pattern

import "fmt"

// CanonicalKey returns the canonical string form of an identifier for the
// given kind. A static pattern matches an identifier exactly when its
// String equals the identifier's canonical key, which lets registries
// look static fixtures up without scanning.
func CanonicalKey(kind Kind, id any) (string, error) {
	switch kind {
	case KindPath:
		s, ok := id.(string)
		if !ok {
			return "", fmt.Errorf("%w: %T", ErrInvalidKey, id)
		}
		return joinPath(splitPath(s)), nil
	case KindProcedure:
		s, ok := id.(string)
		if !ok {
			return "", fmt.Errorf("%w: %T", ErrInvalidKey, id)
		}
		return s, nil
	case KindTuple:
		elems, ok := toSlice(id)
		if !ok {
			return "", fmt.Errorf("%w: %T", ErrInvalidKey, id)
		}
		norm, err := normalize(elems, true)
		if err != nil {
			return "", err
		}
		return encodeJSON(norm)
	}
	return "", ErrUnknownKind
}
