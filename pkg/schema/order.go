package schema

const OrderPlacedSchemaTextV1 = `{
	"type": "record",
	"namespace": "orders",
	"name": "order_placed",
	"fields": [
		{"name": "order_id", "type": "string"},
		{"name": "provider", "type": "string"},
		{"name": "currency", "type": "string"},
		{"name": "total", "type": "double"},
		{"name": "created_at", "type": "long"},
		{"name": "items", "type": {
			"type": "array",
			"items": {
				"type": "record",
				"name": "order_item",
				"fields": [
					{"name": "id", "type": "long"},
					{"name": "name", "type": "string"},
					{"name": "price", "type": "double"},
					{"name": "qty", "type": "int"}
				]
			}
		}}
	]
}`

type (
	OrderPlacedV1 struct {
		OrderID   string        `avro:"order_id"`
		Provider  string        `avro:"provider"`
		Currency  string        `avro:"currency"`
		Total     float64       `avro:"total"`
		CreatedAt int64         `avro:"created_at"`
		Items     []OrderItemV1 `avro:"items"`
	}

	OrderItemV1 struct {
		ID    int64   `avro:"id"`
		Name  string  `avro:"name"`
		Price float64 `avro:"price"`
		Qty   int     `avro:"qty"`
	}
)
