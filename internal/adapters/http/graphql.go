package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	shapeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Shape",
		Fields: graphql.Fields{
			"id":                     &graphql.Field{Type: graphql.String},
			"kind":                   &graphql.Field{Type: graphql.String},
			"points":                 &graphql.Field{Type: graphql.NewList(geoPointType)},
			"target_distance_meters": &graphql.Field{Type: graphql.Float},
			"color":                  &graphql.Field{Type: graphql.String},
			"created_at":             &graphql.Field{Type: graphql.DateTime},
			"updated_at":             &graphql.Field{Type: graphql.DateTime},
		},
	})

	narrationStepType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NarrationStep",
		Fields: graphql.Fields{
			"instruction_text": &graphql.Field{Type: graphql.String},
			"distance_meters":  &graphql.Field{Type: graphql.Float},
			"start_point":      &graphql.Field{Type: geoPointType},
			"end_point":        &graphql.Field{Type: geoPointType},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DirectionsSession",
		Fields: graphql.Fields{
			"id":                 &graphql.Field{Type: graphql.String},
			"state":              &graphql.Field{Type: graphql.String},
			"steps":              &graphql.Field{Type: graphql.NewList(narrationStepType)},
			"current_step_index": &graphql.Field{Type: graphql.Int},
			"arrived":            &graphql.Field{Type: graphql.Boolean},
			"voice_enabled":      &graphql.Field{Type: graphql.Boolean},
			"mock_route":         &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"shapes": &graphql.Field{
				Type:        graphql.NewList(shapeType),
				Description: "List stored shapes, newest first",
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					offset := p.Args["offset"].(int)
					return deps.Shapes.List(p.Context, limit, offset)
				},
			},
			"shape": &graphql.Field{
				Type:        shapeType,
				Description: "Get a shape by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Shapes.Get(p.Context, id)
				},
			},
			"directionsSession": &graphql.Field{
				Type:        sessionType,
				Description: "The active turn-by-turn session, if any",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Narration.Session(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
