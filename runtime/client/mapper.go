package client

import "github.com/astro-dev-lab/tablekit/query/sqlgen"

// decode runs result values back through the type registry per the
// statement's row plan. Columns without a planned type pass through as the
// driver returned them.
func (c *Client) decode(plan sqlgen.RowPlan, rows []map[string]interface{}) ([]map[string]interface{}, error) {
	if len(plan.Columns) == 0 {
		return rows, nil
	}

	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		decoded := make(map[string]interface{}, len(row))
		for name, v := range row {
			t, planned := plan.Columns[name]
			if !planned || t == "" || v == nil {
				decoded[name] = v
				continue
			}
			dv, err := c.reg.Decode(t, v)
			if err != nil {
				return nil, err
			}
			decoded[name] = dv
		}
		out[i] = decoded
	}
	return out, nil
}
