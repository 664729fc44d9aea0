package canvas

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphDisposed indicates an operation on a graph whose editing session ended.
	ErrGraphDisposed = errors.New("canvas: graph disposed")
	// ErrObjectNotFound indicates that no object carries the requested identity.
	ErrObjectNotFound = errors.New("canvas: object not found")
	// ErrDuplicateObjectID indicates that an object identity is already present in the graph.
	ErrDuplicateObjectID = errors.New("canvas: duplicate object id")
	errMissingIDProvider = errors.New("canvas: id provider is required")
)

// IDProvider issues identities for newly added objects.
type IDProvider interface {
	NewID() (string, error)
}

// ImageData holds decoded bytes attached to an image object. Broken marks an
// asset that failed to load; the object stays in the graph.
type ImageData struct {
	Bytes       []byte
	ContentType string
	Width       int
	Height      int
	Broken      bool
	Reason      string
}

// Removed records an object taken out of the graph together with its z-order
// position so that the removal can be reverted with Insert.
type Removed struct {
	Index  int
	Object Object
}

// Graph is the live, editable object graph of one editing session. It is not
// safe for concurrent use; the owning session serialises access.
type Graph struct {
	ids      IDProvider
	objects  []Object
	images   map[ObjectID]ImageData
	disposed bool
}

// NewGraph constructs an empty graph. ids may be nil for graphs that only
// receive objects through Append and Insert.
func NewGraph(ids IDProvider) *Graph {
	return &Graph{ids: ids, images: make(map[ObjectID]ImageData)}
}

// Len reports the number of objects.
func (g *Graph) Len() int {
	return len(g.objects)
}

// Disposed reports whether Dispose has been called.
func (g *Graph) Disposed() bool {
	return g.disposed
}

// Objects returns the objects in z-order.
func (g *Graph) Objects() ([]Object, error) {
	if g.disposed {
		return nil, ErrGraphDisposed
	}
	out := make([]Object, len(g.objects))
	copy(out, g.objects)
	return out, nil
}

// Lookup returns the object with the given identity.
func (g *Graph) Lookup(id ObjectID) (Object, error) {
	if g.disposed {
		return Object{}, ErrGraphDisposed
	}
	index := g.indexOf(id)
	if index < 0 {
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return g.objects[index], nil
}

// Append places a validated object on top of the z-order.
func (g *Graph) Append(object Object) error {
	return g.Insert(len(g.objects), object)
}

// Insert places a validated object at the given z-order position.
func (g *Graph) Insert(index int, object Object) error {
	if g.disposed {
		return ErrGraphDisposed
	}
	if err := object.Validate(); err != nil {
		return err
	}
	if g.indexOf(object.ID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateObjectID, object.ID())
	}
	if index < 0 || index > len(g.objects) {
		index = len(g.objects)
	}
	g.objects = append(g.objects, Object{})
	copy(g.objects[index+1:], g.objects[index:])
	g.objects[index] = object
	return nil
}

// AddText adds a text object on top and returns its identity.
func (g *Graph) AddText(transform Transform, spec TextSpec) (ObjectID, error) {
	return g.add(func(id ObjectID) (Object, error) {
		return NewText(id, transform, spec)
	})
}

// AddShape adds a rectangle or circle on top and returns its identity.
func (g *Graph) AddShape(kind Kind, transform Transform, spec ShapeSpec) (ObjectID, error) {
	return g.add(func(id ObjectID) (Object, error) {
		switch kind {
		case KindRectangle:
			return NewRectangle(id, transform, spec)
		case KindCircle:
			return NewCircle(id, transform, spec)
		default:
			return Object{}, fmt.Errorf("%w: %q is not a shape kind", ErrInvalidObject, kind)
		}
	})
}

// AddImage adds an image object on top and returns its identity.
func (g *Graph) AddImage(transform Transform, spec ImageSpec) (ObjectID, error) {
	return g.add(func(id ObjectID) (Object, error) {
		return NewImage(id, transform, spec)
	})
}

// AddPlaceholder adds a placeholder-group on top and returns its identity.
func (g *Graph) AddPlaceholder(transform Transform, slotType SlotType, shape ShapeSpec, label TextSpec) (ObjectID, error) {
	return g.add(func(id ObjectID) (Object, error) {
		return NewPlaceholder(id, transform, slotType, shape, label)
	})
}

func (g *Graph) add(build func(ObjectID) (Object, error)) (ObjectID, error) {
	if g.disposed {
		return "", ErrGraphDisposed
	}
	if g.ids == nil {
		return "", errMissingIDProvider
	}
	rawID, err := g.ids.NewID()
	if err != nil {
		return "", err
	}
	id, err := NewObjectID(rawID)
	if err != nil {
		return "", err
	}
	object, err := build(id)
	if err != nil {
		return "", err
	}
	if err := g.Append(object); err != nil {
		return "", err
	}
	return id, nil
}

// Replace swaps the object that shares the replacement's identity, keeping its z-order.
func (g *Graph) Replace(object Object) error {
	if g.disposed {
		return ErrGraphDisposed
	}
	if err := object.Validate(); err != nil {
		return err
	}
	index := g.indexOf(object.ID())
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, object.ID())
	}
	g.objects[index] = object
	return nil
}

// Delete removes the selected objects. The result lists every removed object
// with its former position in ascending order; unknown identities are ignored.
func (g *Graph) Delete(ids ...ObjectID) ([]Removed, error) {
	if g.disposed {
		return nil, ErrGraphDisposed
	}
	selected := make(map[ObjectID]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}
	removed := make([]Removed, 0, len(ids))
	kept := g.objects[:0]
	for index, object := range g.objects {
		if _, ok := selected[object.ID()]; ok {
			removed = append(removed, Removed{Index: index, Object: object})
			delete(g.images, object.ID())
			continue
		}
		kept = append(kept, object)
	}
	for index := len(kept); index < len(g.objects); index++ {
		g.objects[index] = Object{}
	}
	g.objects = kept
	return removed, nil
}

// AttachImage stores loaded bytes for an image object.
func (g *Graph) AttachImage(id ObjectID, data ImageData) error {
	if g.disposed {
		return ErrGraphDisposed
	}
	if g.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	g.images[id] = data
	return nil
}

// ImageData returns the bytes attached to an image object.
func (g *Graph) ImageData(id ObjectID) (ImageData, bool) {
	if g.disposed {
		return ImageData{}, false
	}
	data, ok := g.images[id]
	return data, ok
}

// Dispose releases every attached buffer. It is safe to call more than once.
func (g *Graph) Dispose() {
	if g == nil || g.disposed {
		return
	}
	for id := range g.images {
		delete(g.images, id)
	}
	g.images = nil
	g.objects = nil
	g.disposed = true
}

func (g *Graph) indexOf(id ObjectID) int {
	for index, object := range g.objects {
		if object.ID() == id {
			return index
		}
	}
	return -1
}
