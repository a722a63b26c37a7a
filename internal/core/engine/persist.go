package engine

import "encoding/json"

// KV is the minimal key-value surface the engine persists through. The
// Badger adapter satisfies it.
type KV interface {
	Put(namespace, key string, value []byte) error
	Get(namespace, key string) ([]byte, error)
	Delete(namespace, key string) error
	List(namespace, prefix string) ([]string, error)
}

// Persistence is the write-through hook a store uses when configured with
// one. Records are opaque JSON blobs keyed by entity id.
type Persistence interface {
	Save(id string, data []byte) error
	Delete(id string) error
	LoadAll() ([][]byte, error)
}

// kvPersistence stores each entity under <namespace><id>.
type kvPersistence struct {
	kv        KV
	namespace string
}

// NewKVPersistence returns a Persistence writing into the given namespace of
// a KV store. Each store must use a distinct namespace.
func NewKVPersistence(kv KV, namespace string) Persistence {
	return &kvPersistence{kv: kv, namespace: namespace}
}

func (p *kvPersistence) Save(id string, data []byte) error {
	return p.kv.Put(p.namespace, id, data)
}

func (p *kvPersistence) Delete(id string) error {
	return p.kv.Delete(p.namespace, id)
}

func (p *kvPersistence) LoadAll() ([][]byte, error) {
	keys, err := p.kv.List(p.namespace, "")
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(keys))
	for _, key := range keys {
		data, err := p.kv.Get(p.namespace, key)
		if err != nil {
			// Key raced away between List and Get; skip it.
			continue
		}
		out = append(out, data)
	}
	return out, nil
}

func marshalEntity[I, R any](ent Entity[I, R]) ([]byte, error) {
	return json.Marshal(ent)
}

func unmarshalEntity[I, R any](data []byte) (Entity[I, R], error) {
	var ent Entity[I, R]
	err := json.Unmarshal(data, &ent)
	return ent, err
}
