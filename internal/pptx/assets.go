package pptx

import "fmt"

// Resolver maps slide relationships to media parts and reads their bytes on
// demand.
type Resolver struct {
	container *Container
}

// NewResolver binds a resolver to c.
func NewResolver(c *Container) *Resolver {
	return &Resolver{container: c}
}

// ResolveImage maps relID from source's relationships to an ImageRef. When the
// relationship is missing, external, or points at a missing part, a Warning
// is returned instead and the image should be dropped.
func (r *Resolver) ResolveImage(source string, rels Relationships, relID string) (ImageRef, *Warning) {
	rel, ok := rels[relID]
	if !ok {
		return ImageRef{}, &Warning{
			Part:    source,
			Code:    WarnUnresolvedRelationship,
			Message: fmt.Sprintf("relationship %s not found", relID),
		}
	}
	if rel.External {
		return ImageRef{}, &Warning{
			Part:    source,
			Code:    WarnExternalTarget,
			Message: fmt.Sprintf("relationship %s targets external resource %s", relID, rel.Target),
		}
	}
	target, ok := resolveTarget(source, rel.Target)
	if !ok {
		return ImageRef{}, &Warning{
			Part:    source,
			Code:    WarnUnresolvedRelationship,
			Message: fmt.Sprintf("relationship %s target %q escapes the container", relID, rel.Target),
		}
	}
	size, ok := r.container.PartSize(target)
	if !ok {
		return ImageRef{}, &Warning{
			Part:    source,
			Code:    WarnMissingMedia,
			Message: fmt.Sprintf("relationship %s targets missing part %s", relID, target),
		}
	}
	return ImageRef{RelationshipID: relID, MediaPartPath: target, Size: size}, nil
}

// Bytes reads the media part behind ref.
func (r *Resolver) Bytes(ref ImageRef) ([]byte, error) {
	return r.container.Read(ref.MediaPartPath)
}

// Size returns the decompressed size of the media part behind ref.
func (r *Resolver) Size(ref ImageRef) (int64, error) {
	size, ok := r.container.PartSize(ref.MediaPartPath)
	if !ok {
		return 0, parseErr(ref.MediaPartPath, ErrPartNotFound)
	}
	return size, nil
}
