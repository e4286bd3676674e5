package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/opal/binding"
	"github.com/Konsultn-Engineering/opal/schema"
)

// containerBuffers are the session-owned images and bindings behind one
// container's statements. They are created once per container and bound
// once: the cached statements keep pointing at the same cells for the
// session's lifetime.
type containerBuffers struct {
	paramImage  *binding.Image   // object_id, idx, value
	param       *binding.Binding // insert parameters
	resultImage *binding.Image   // value
	result      *binding.Binding // select results
}

func (s *Session) buffersFor(cm *schema.ContainerMeta) *containerBuffers {
	if buf, ok := s.containers[cm]; ok {
		return buf
	}
	buf := &containerBuffers{
		paramImage:  binding.NewImage(3),
		param:       binding.NewBinding(3),
		resultImage: binding.NewImage(1),
		result:      binding.NewBinding(1),
	}
	buf.param.Rebind(buf.paramImage.Cell(0), buf.paramImage.Cell(1), buf.paramImage.Cell(2))
	buf.result.Rebind(buf.resultImage.Cell(0))
	s.containers[cm] = buf
	return buf
}

// persistContainers replaces the container rows for the object whose id
// is currently bound in the context's id binding. Statements come from
// the lazily allocated sub-cache.
func (s *Session) persistContainers(ctx context.Context, sts statements, traits *schema.Traits, v reflect.Value, id reflect.Value) error {
	if len(traits.Containers) == 0 {
		return nil
	}
	cc := sts.Containers()
	for _, cm := range traits.Containers {
		if _, err := cc.Delete(cm.DeleteText).Execute(ctx); err != nil {
			return fmt.Errorf("session: clear %s: %w", cm.Table, err)
		}

		buf := s.buffersFor(cm)
		field := v.FieldByIndex(cm.Index)
		for i := 0; i < field.Len(); i++ {
			if err := schema.ValueToCell(buf.paramImage.Cell(0), id); err != nil {
				return err
			}
			buf.paramImage.Cell(1).SetInteger(int64(i))
			if err := schema.ValueToCell(buf.paramImage.Cell(2), field.Index(i)); err != nil {
				return fmt.Errorf("session: %s[%d]: %w", cm.Name, i, err)
			}
			if _, err := cc.Insert(cm.InsertText, buf.param).Execute(ctx); err != nil {
				return fmt.Errorf("session: insert %s: %w", cm.Table, err)
			}
		}
	}
	return nil
}

// loadContainers fills the entity's container fields for the object
// whose id is currently bound.
func (s *Session) loadContainers(ctx context.Context, sts statements, traits *schema.Traits, v reflect.Value) error {
	if len(traits.Containers) == 0 {
		return nil
	}
	cc := sts.Containers()
	for _, cm := range traits.Containers {
		buf := s.buffersFor(cm)
		st := cc.Select(cm.SelectText, buf.result)
		if err := st.Execute(ctx); err != nil {
			return fmt.Errorf("session: load %s: %w", cm.Table, err)
		}

		out := reflect.MakeSlice(reflect.SliceOf(cm.Elem), 0, 8)
		for {
			ok, err := st.Fetch()
			if err != nil {
				st.Free()
				return fmt.Errorf("session: load %s: %w", cm.Table, err)
			}
			if !ok {
				break
			}
			elem, err := schema.ValueFromCell(buf.resultImage.Cell(0), cm.Elem)
			if err != nil {
				st.Free()
				return fmt.Errorf("session: load %s: %w", cm.Table, err)
			}
			out = reflect.Append(out, elem)
		}
		v.FieldByIndex(cm.Index).Set(out)
	}
	return nil
}

// eraseContainers removes all container rows for the currently bound id.
func (s *Session) eraseContainers(ctx context.Context, sts statements, traits *schema.Traits) error {
	if len(traits.Containers) == 0 {
		return nil
	}
	cc := sts.Containers()
	for _, cm := range traits.Containers {
		if _, err := cc.Delete(cm.DeleteText).Execute(ctx); err != nil {
			return fmt.Errorf("session: clear %s: %w", cm.Table, err)
		}
	}
	return nil
}
